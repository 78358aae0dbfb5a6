package cacheproviders

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tsukumogami/cport/internal/cacheconfig"
)

// NuGetProvider is the nuget/nugetconfig binary-cache backend (spec.md
// §4.7): it shells out to the NuGet CLI, generating a packages.config to
// restore and a nuspec-driven `nuget pack`/`nuget push` to store. Unlike
// every other backend, its object identity is a package id+version derived
// from the port's own version rather than "<abi>.zip" (§6).
type NuGetProvider struct {
	uri           string // nuget,<uri> source feed, or "" when only a config file is given
	configPath    string // nugetconfig,<path>
	timeoutSecs   int    // nugettimeout, 0 means CLI default
	interactive   bool
	access        cacheconfig.Access
	buildtreesDir string // scratch dir for packages.config / .nuspec / .nupkg
}

func NewNuGetProvider(uri, configPath string, timeoutSecs int, interactive bool, access cacheconfig.Access, buildtreesDir string) *NuGetProvider {
	return &NuGetProvider{
		uri:           uri,
		configPath:    configPath,
		timeoutSecs:   timeoutSecs,
		interactive:   interactive,
		access:        access,
		buildtreesDir: buildtreesDir,
	}
}

func (p *NuGetProvider) Access() cacheconfig.Access { return p.access }

func (p *NuGetProvider) Name() string { return "nuget" }

// nuGetPrefix reads X_VCPKG_NUGET_ID_PREFIX, matching the original's
// get_nuget_prefix(): empty unless set, with a trailing underscore appended
// when it is.
func nuGetPrefix() string {
	prefix := os.Getenv("X_VCPKG_NUGET_ID_PREFIX")
	if prefix == "" {
		return ""
	}
	return prefix + "_"
}

// PackageID returns the "<prefix><port>_<triplet>" NuGet package id (§6).
func PackageID(portName, triplet string) string {
	return nuGetPrefix() + portName + "_" + triplet
}

var (
	nugetDateVersion = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:\.(\d+))*$`)
	nugetLeadingV    = regexp.MustCompile(`^v?(\d+(?:\.\d+)*)`)
)

// PackageVersion derives a NuGet-legal version string from a port's raw
// version plus its ABI tag, per §6: a date version becomes "Y.M.D"; else a
// leading-"v"-stripped dot-version is used as-is; else the literal "0.0.0";
// then "-vcpkg<abi-tag>" is always appended.
func PackageVersion(rawVersion, abiTag string) string {
	base := "0.0.0"
	if m := nugetDateVersion.FindStringSubmatch(rawVersion); m != nil {
		y, mo, d := m[1], m[2], m[3]
		base = fmt.Sprintf("%s.%s.%s", trimLeadingZeros(y), trimLeadingZeros(mo), trimLeadingZeros(d))
	} else if m := nugetLeadingV.FindStringSubmatch(rawVersion); m != nil {
		base = m[1]
	}
	return fmt.Sprintf("%s-vcpkg%s", base, abiTag)
}

func trimLeadingZeros(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func (p *NuGetProvider) objectRef(action Action) (id, version string) {
	return PackageID(action.Name, action.Triplet), PackageVersion(action.Version, action.ABI)
}

func (p *NuGetProvider) nugetArgs(args ...string) []string {
	if p.uri != "" {
		args = append(args, "-Source", p.uri)
	}
	if p.configPath != "" {
		args = append(args, "-ConfigFile", p.configPath)
	}
	if p.timeoutSecs > 0 {
		args = append(args, "-Timeout", fmt.Sprintf("%d", p.timeoutSecs))
	}
	if !p.interactive {
		args = append(args, "-NonInteractive")
	}
	return args
}

// authFailurePatterns mirrors the original's stdout sniffing for an
// authentication prompt that the NuGet CLI can't surface as a clean exit
// code (spec.md §4.7).
var authFailurePatterns = []string{
	"Authentication may require manual action.",
	"401 Unauthorized",
	`for example "-ApiKey AzureDevOps"`,
}

func detectAuthFailure(output string) bool {
	for _, pat := range authFailurePatterns {
		if strings.Contains(output, pat) {
			return true
		}
	}
	return false
}

func (p *NuGetProvider) run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, "nuget", args...)
	out, err := cmd.CombinedOutput()
	output := string(out)
	if detectAuthFailure(output) {
		return output, &CacheError{Type: ErrTypeAuth, Backend: "nuget", Message: "authentication may require manual action", Err: err}
	}
	if err != nil {
		return output, &CacheError{Type: ErrTypeNetwork, Backend: "nuget", Message: "nuget " + strings.Join(args, " "), Err: err}
	}
	return output, nil
}

func (p *NuGetProvider) NeedsNuspecData() bool {
	return p.uri != "" || p.configPath != ""
}

func (p *NuGetProvider) TryRestore(ctx context.Context, act Action) (RestoreOutcome, error) {
	outcomes, err := p.Prefetch(ctx, []Action{act})
	if err != nil {
		return Unavailable, err
	}
	return outcomes[act.ABI], nil
}

// Precheck asks the NuGet feed for each package id+version by attempting a
// dry-run install is unnecessary overhead for a presence check; the NuGet
// CLI has no batch "exists" verb, so every action is reported Unavailable
// until an actual Prefetch/TryRestore confirms it, matching how `nuget`
// itself offers no HEAD-style availability query.
func (p *NuGetProvider) Precheck(ctx context.Context, actions []Action) (map[string]bool, error) {
	out := make(map[string]bool, len(actions))
	for _, a := range actions {
		out[a.ABI] = false
	}
	return out, nil
}

// PushSuccess packs and pushes the pre-rendered nuspec this action's
// PushInfo carries (generated earlier because NeedsNuspecData is true).
func (p *NuGetProvider) PushSuccess(ctx context.Context, info PushInfo) error {
	if info.Nuspec == "" {
		return fmt.Errorf("nuget push_success: PushInfo.Nuspec must be non-empty because NeedsNuspecData() returned true")
	}
	nuspecPath := filepath.Join(p.buildtreesDir, info.Action.Name, info.Action.Triplet+".nuspec")
	if err := os.MkdirAll(filepath.Dir(nuspecPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(nuspecPath, []byte(info.Nuspec), 0o644); err != nil {
		return fmt.Errorf("writing nuspec: %w", err)
	}
	return p.Push(ctx, nuspecPath)
}

// Prefetch downloads every listed action's package via one `nuget install`
// driven by a generated packages.config, then moves each resulting .nupkg's
// payload into its target package directory.
func (p *NuGetProvider) Prefetch(ctx context.Context, actions []Action) (map[string]RestoreOutcome, error) {
	out := make(map[string]RestoreOutcome, len(actions))
	if len(actions) == 0 {
		return out, nil
	}

	packagesConfig := filepath.Join(p.buildtreesDir, "packages.config")
	if err := p.writePackagesConfig(packagesConfig, actions); err != nil {
		return nil, err
	}

	installDir := filepath.Join(p.buildtreesDir, "nuget-install")
	args := p.nugetArgs("install", packagesConfig, "-OutputDirectory", installDir,
		"-ExcludeVersion", "-PreRelease", "-DirectDownload", "-NoCache")
	output, err := p.run(ctx, args)
	for _, a := range actions {
		out[a.ABI] = Unavailable
	}
	if err != nil {
		var cerr *CacheError
		if isAuthCacheError(err, &cerr) {
			return out, nil
		}
		return out, nil // nolint: prefetch never aborts the plan (spec.md §7)
	}
	_ = output

	for _, a := range actions {
		id, _ := p.objectRef(a)
		payload := filepath.Join(installDir, id)
		if _, statErr := os.Stat(payload); statErr != nil {
			continue
		}
		if err := os.MkdirAll(a.PackageDir, 0o755); err != nil {
			continue
		}
		if err := moveContents(payload, a.PackageDir); err == nil {
			out[a.ABI] = Restored
		}
	}
	return out, nil
}

func isAuthCacheError(err error, out **CacheError) bool {
	if cerr, ok := err.(*CacheError); ok {
		*out = cerr
		return cerr.Type == ErrTypeAuth
	}
	return false
}

func (p *NuGetProvider) writePackagesConfig(path string, actions []Action) error {
	type pkg struct {
		XMLName xml.Name `xml:"package"`
		ID      string   `xml:"id,attr"`
		Version string   `xml:"version,attr"`
	}
	type doc struct {
		XMLName xml.Name `xml:"packages"`
		Entries []pkg    `xml:"package"`
	}
	d := doc{}
	for _, a := range actions {
		id, version := p.objectRef(a)
		d.Entries = append(d.Entries, pkg{ID: id, Version: version})
	}
	data, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding packages.config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), data...), 0o644)
}

// NuSpecData is everything generate_nuspec needs beyond PushInfo: fields
// that live outside the cacheproviders package (SCF description/homepage,
// compiler identity) and are supplied by the orchestrator at push time.
type NuSpecData struct {
	Description  string
	Homepage     string
	CompilerID   string
	CompilerVer  string
	TripletAbi   string
	RepoURL      string
	RepoBranch   string
	RepoCommit   string
}

// GenerateNuspec renders the `<package>` XML document the original's
// generate_nuspec produces (spec.md §6): a description summarizing version,
// triplet, compiler identity, and dependencies, plus optional repository
// metadata sourced from VCPKG_NUGET_REPOSITORY or the GitHub Actions
// environment.
func GenerateNuspec(info PushInfo, data NuSpecData) (string, error) {
	id, version := PackageID(info.Action.Name, info.Action.Triplet), PackageVersion(info.Action.Version, info.Action.ABI)

	var desc strings.Builder
	desc.WriteString("NOT FOR DIRECT USE. Automatically generated cache package.\n\n")
	if data.Description != "" {
		desc.WriteString(data.Description)
		desc.WriteString("\n\n")
	}
	fmt.Fprintf(&desc, "Version: %s\nTriplet: %s\n", info.Action.Version, info.Action.Triplet)
	fmt.Fprintf(&desc, "CXX Compiler id: %s\nCXX Compiler version: %s\n", data.CompilerID, data.CompilerVer)
	fmt.Fprintf(&desc, "Triplet/Compiler hash: %s\n", data.TripletAbi)
	desc.WriteString("Features: " + strings.Join(info.Features, ", ") + "\n")
	desc.WriteString("Dependencies:\n")
	for _, dep := range info.Dependencies {
		fmt.Fprintf(&desc, "    %s\n", dep)
	}

	type packageType struct {
		Name string `xml:"name,attr"`
	}
	type repository struct {
		Type   string `xml:"type,attr"`
		URL    string `xml:"url,attr"`
		Branch string `xml:"branch,attr,omitempty"`
		Commit string `xml:"commit,attr,omitempty"`
	}
	type metadata struct {
		ID           string        `xml:"id"`
		Version      string        `xml:"version"`
		ProjectURL   string        `xml:"projectUrl,omitempty"`
		Authors      string        `xml:"authors"`
		Description  string        `xml:"description"`
		PackageTypes []packageType `xml:"packageTypes>packageType"`
		Repository   *repository   `xml:"repository,omitempty"`
	}
	type file struct {
		Src    string `xml:"src,attr"`
		Target string `xml:"target,attr"`
	}
	type pkgDoc struct {
		XMLName  xml.Name `xml:"package"`
		Metadata metadata `xml:"metadata"`
		Files    []file   `xml:"files>file"`
	}

	m := metadata{
		ID:           id,
		Version:      version,
		ProjectURL:   data.Homepage,
		Authors:      "cport",
		Description:  desc.String(),
		PackageTypes: []packageType{{Name: "vcpkg"}},
	}
	if data.RepoURL != "" {
		m.Repository = &repository{Type: "git", URL: data.RepoURL, Branch: data.RepoBranch, Commit: data.RepoCommit}
	}

	doc := pkgDoc{
		Metadata: m,
		Files:    []file{{Src: filepath.Join(info.Action.PackageDir, "**"), Target: ""}},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding nuspec: %w", err)
	}
	return xml.Header + string(out), nil
}

// NuGetRepoInfo resolves the repository metadata embedded in a generated
// nuspec: VCPKG_NUGET_REPOSITORY takes priority; otherwise it's assembled
// from the four GitHub Actions environment variables the original checks
// (spec.md §6).
func NuGetRepoInfo() (url, branch, commit string) {
	if repo := os.Getenv("VCPKG_NUGET_REPOSITORY"); repo != "" {
		return repo, "", ""
	}
	server := os.Getenv("GITHUB_SERVER_URL")
	ghRepo := os.Getenv("GITHUB_REPOSITORY")
	if server == "" || ghRepo == "" {
		return "", "", ""
	}
	return server + "/" + ghRepo + ".git", os.Getenv("GITHUB_REF"), os.Getenv("GITHUB_SHA")
}

// Push packs and pushes one build's nuspec via `nuget pack`/`nuget push`.
func (p *NuGetProvider) Push(ctx context.Context, nuspecPath string) error {
	packDir := filepath.Dir(nuspecPath)
	if _, err := p.run(ctx, p.nugetArgs("pack", nuspecPath, "-OutputDirectory", packDir)); err != nil {
		return err
	}
	matches, err := filepath.Glob(filepath.Join(packDir, "*.nupkg"))
	if err != nil || len(matches) == 0 {
		return fmt.Errorf("nuget pack produced no .nupkg in %s", packDir)
	}
	pushArgs := append([]string{"push", matches[0]}, p.nugetArgs()...)
	_, err = p.run(ctx, pushArgs)
	return err
}

func moveContents(srcDir, dstDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		src := filepath.Join(srcDir, e.Name())
		dst := filepath.Join(dstDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return nil
}
