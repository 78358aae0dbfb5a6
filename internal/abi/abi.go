// Package abi computes the package-ABI cache key a planned build is keyed
// under, following commands.build.cpp's populate_abi_tag exactly: a sorted
// set of key/value entries (triplet identity, toolchain/compiler fingerprint,
// per-dependency ABIs, per-port-file hashes, helper-script versions) hashed
// together with SHA256. A missing input never errors — it degrades to an
// empty ABI, since an untracked predecessor makes the whole chain untracked.
package abi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tsukumogami/cport/internal/log"
)

// CompilerInfo is the (id, version, hash) triple identifying the toolset's
// compiler, used in triplet_abi when compiler tracking is enabled.
type CompilerInfo struct {
	ID      string
	Version string
	Hash    string
}

// DependencyAbi is one resolved dependency's contribution: its name and the
// package_abi cport already computed for it (empty if untracked).
type DependencyAbi struct {
	Name      string
	PublicAbi string
}

// Input bundles everything populate_abi_tag reads for one planned action.
type Input struct {
	Triplet       string
	TripletFile   string // absolute path; hashed if present
	ToolchainFile string // absolute path; hashed if present

	CompilerTrackingEnabled bool
	Compiler                CompilerInfo

	PublicAbiOverride string // empty means unset

	// TrackedEnvVars maps a tracked variable's name to its value, only for
	// variables actually present in the environment.
	TrackedEnvVars map[string]string

	IsXbox         bool
	GrdkHeaderPath string // absolute path to grdk.h; empty if not present

	Dependencies []DependencyAbi

	PortDir string // port's on-disk directory; every regular file under it is hashed

	CMakeVersion      string
	IsWindows         bool
	PowershellVersion string

	// HelperScripts maps a known helper script's name (matched as an
	// ASCII-case-insensitive substring of the concatenated .cmake contents)
	// to its precomputed hash.
	HelperScripts map[string]string
	PortsCmakeHash string

	Features []string // effective feature list; "core" added, "default" stripped if present

	UseHeadVersion bool
	Editable       bool
}

// AbiEntry is one key/value line contributing to the package ABI.
type AbiEntry struct {
	Key   string
	Value string
}

// Result is the computed ABI plus the bookkeeping needed for the SBOM and
// the on-disk tag file.
type Result struct {
	PackageAbi         string
	Entries            []AbiEntry
	TagFileContents    string
	RelativePortFiles  []string
	RelativePortHashes []string
}

const maxPortFileCount = 100

// Hash computes the package ABI for one planned action. It never returns an
// error for missing inputs — those degrade to an empty Result and a Debug
// log line naming what was missing; Hash only returns an error for an
// unreadable port directory, which indicates a caller bug (a resolved action
// with no on-disk port).
func Hash(in Input, logger log.Logger) (Result, error) {
	if logger == nil {
		logger = log.NewNoop()
	}

	if in.UseHeadVersion || in.Editable {
		logger.Debug("abi tracking skipped", "reason", "use_head_version or editable")
		return Result{}, nil
	}
	for _, dep := range in.Dependencies {
		if dep.PublicAbi == "" {
			logger.Debug("abi tracking skipped", "reason", "untracked dependency", "dependency", dep.Name)
			return Result{}, nil
		}
	}

	var entries []AbiEntry
	var missing []string
	add := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
			return
		}
		entries = append(entries, AbiEntry{Key: key, Value: value})
	}

	add("triplet", in.Triplet)
	add("triplet_abi", tripletAbi(in))

	if in.PublicAbiOverride != "" {
		add("public_abi_override", sha256Hex([]byte(in.PublicAbiOverride)))
	}

	for _, name := range sortedKeys(in.TrackedEnvVars) {
		add("ENV:"+name, sha256Hex([]byte(in.TrackedEnvVars[name])))
	}

	if in.IsXbox {
		if in.GrdkHeaderPath != "" {
			h, err := hashFile(in.GrdkHeaderPath)
			if err != nil {
				logger.Debug("abi: failed to hash grdk.h", "error", err)
				add("grdk.h", "none")
			} else {
				add("grdk.h", h)
			}
		} else {
			add("grdk.h", "none")
		}
	}

	for _, dep := range in.Dependencies {
		add(dep.Name, dep.PublicAbi)
	}

	var relativeFiles, relativeHashes []string
	var cmakeContents strings.Builder
	if in.PortDir != "" {
		files, err := portFiles(in.PortDir)
		if err != nil {
			return Result{}, fmt.Errorf("walking port directory %s: %w", in.PortDir, err)
		}
		if len(files) > maxPortFileCount {
			logger.Warn("port carries more files than expected", "port_dir", in.PortDir, "count", len(files), "limit", maxPortFileCount)
		}
		for _, rel := range files {
			abs := filepath.Join(in.PortDir, rel)
			h, err := hashFile(abs)
			if err != nil {
				logger.Debug("abi: failed to hash port file", "file", rel, "error", err)
				continue
			}
			add(rel, h)
			relativeFiles = append(relativeFiles, rel)
			relativeHashes = append(relativeHashes, h)
			if strings.HasSuffix(strings.ToLower(rel), ".cmake") {
				data, err := os.ReadFile(abs)
				if err == nil {
					cmakeContents.Write(data)
					cmakeContents.WriteByte('\n')
				}
			}
		}
	}

	add("cmake", in.CMakeVersion)
	if in.IsWindows {
		add("powershell", in.PowershellVersion)
	}

	contents := cmakeContents.String()
	lowerContents := strings.ToLower(contents)
	for _, name := range sortedKeys(in.HelperScripts) {
		if strings.Contains(lowerContents, strings.ToLower(name)) {
			add(name, in.HelperScripts[name])
		}
	}

	add("ports.cmake", in.PortsCmakeHash)
	add("post_build_checks", "2")
	add("features", featureString(in.Features))

	if len(missing) > 0 {
		logger.Debug("abi tracking skipped", "reason", "missing entries", "keys", missing)
		return Result{}, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	var rendered strings.Builder
	for _, e := range entries {
		rendered.WriteString(e.Key)
		rendered.WriteByte(' ')
		rendered.WriteString(e.Value)
		rendered.WriteByte('\n')
	}

	return Result{
		PackageAbi:         sha256Hex([]byte(rendered.String())),
		Entries:            entries,
		TagFileContents:    rendered.String(),
		RelativePortFiles:  relativeFiles,
		RelativePortHashes: relativeHashes,
	}, nil
}

// WriteTagFile writes the rendered ABI entries to <buildDir>/<triplet>.vcpkg_abi_info.txt.
func WriteTagFile(buildDir, triplet, contents string) error {
	path := filepath.Join(buildDir, triplet+".vcpkg_abi_info.txt")
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return fmt.Errorf("creating build directory %s: %w", buildDir, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("writing abi tag file %s: %w", path, err)
	}
	return nil
}

func tripletAbi(in Input) string {
	var parts []string
	if in.TripletFile != "" {
		h, err := hashFile(in.TripletFile)
		if err == nil {
			parts = append(parts, h)
		}
	}
	if in.ToolchainFile != "" {
		h, err := hashFile(in.ToolchainFile)
		if err == nil {
			parts = append(parts, h)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if in.CompilerTrackingEnabled && in.Compiler.Hash != "" {
		parts = append(parts, in.Compiler.Hash)
	}
	return strings.Join(parts, "")
}

func featureString(features []string) string {
	set := make(map[string]bool, len(features)+1)
	for _, f := range features {
		if f == "default" {
			continue
		}
		set[f] = true
	}
	set["core"] = true
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return strings.Join(out, ";")
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// portFiles returns every regular file under dir, relative to dir, sorted,
// excluding .DS_Store.
func portFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.Name() == ".DS_Store" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
