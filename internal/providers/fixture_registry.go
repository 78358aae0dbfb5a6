package providers

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/tsukumogami/cport/internal/pkgspec"
	"github.com/tsukumogami/cport/internal/semver"
)

// FixtureRegistry is a TOML-file-backed Registry used to exercise the C3
// contracts in tests and demos: a single baseline.toml plus one
// versions/<port>.toml per port, loaded lazily and cached in memory.
type FixtureRegistry struct {
	dir string

	mu       sync.Mutex
	baseline map[string]fixtureBaselineEntry
	ports    map[string]*fixturePortFile
}

// NewFixtureRegistry returns a registry rooted at dir, which must contain a
// baseline.toml and a versions/ subdirectory.
func NewFixtureRegistry(dir string) *FixtureRegistry {
	return &FixtureRegistry{dir: dir, ports: make(map[string]*fixturePortFile)}
}

type fixtureBaselineFile struct {
	Baseline map[string]fixtureBaselineEntry `toml:"baseline"`
}

type fixtureBaselineEntry struct {
	Version     string `toml:"version"`
	Scheme      string `toml:"scheme"`
	PortVersion int    `toml:"port_version"`
}

type fixturePortFile struct {
	Versions []fixtureVersionEntry `toml:"versions"`
}

type fixtureVersionEntry struct {
	Version         string                  `toml:"version"`
	Scheme          string                  `toml:"scheme"`
	PortVersion     int                     `toml:"port_version"`
	Dependencies    []fixtureDependency     `toml:"dependencies"`
	DefaultFeatures []fixtureDefaultFeature `toml:"default_features"`
	SupportsExpr    string                  `toml:"supports_expr"`
	Features        []fixtureFeature        `toml:"features"`
}

type fixtureDependency struct {
	Name              string                    `toml:"name"`
	Features          []fixtureRequestedFeature `toml:"features"`
	PlatformExpr      string                    `toml:"platform"`
	Host              bool                      `toml:"host"`
	VersionGte        string                    `toml:"version_gte"`
	NoDefaultFeatures bool                      `toml:"no_default_features"`
}

type fixtureRequestedFeature struct {
	Feature      string `toml:"feature"`
	PlatformExpr string `toml:"platform"`
}

type fixtureDefaultFeature struct {
	Feature      string `toml:"feature"`
	PlatformExpr string `toml:"platform"`
}

type fixtureFeature struct {
	Name         string              `toml:"name"`
	Dependencies []fixtureDependency `toml:"dependencies"`
	SupportsExpr string              `toml:"supports_expr"`
}

func schemeFromName(name string) (semver.Scheme, error) {
	switch name {
	case "", "semver":
		return semver.Semver, nil
	case "relaxed":
		return semver.Relaxed, nil
	case "date":
		return semver.Date, nil
	case "string":
		return semver.String, nil
	default:
		return 0, fmt.Errorf("unknown version scheme %q", name)
	}
}

func parseExprField(text string) (*pkgspec.Expr, error) {
	if text == "" {
		return nil, nil
	}
	return pkgspec.ParsePlatformExpr(text)
}

func (r *FixtureRegistry) loadBaseline() (map[string]fixtureBaselineEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.baseline != nil {
		return r.baseline, nil
	}

	var file fixtureBaselineFile
	path := filepath.Join(r.dir, "baseline.toml")
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Message: "failed to decode " + path, Err: err}
	}
	r.baseline = file.Baseline
	return r.baseline, nil
}

func (r *FixtureRegistry) loadPortFile(name string) (*fixturePortFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pf, ok := r.ports[name]; ok {
		return pf, nil
	}

	var file fixturePortFile
	path := filepath.Join(r.dir, "versions", name+".toml")
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, &ProviderError{Type: ErrTypeNotFound, Source: "fixture", Port: name, Message: "failed to decode " + path, Err: err}
	}
	r.ports[name] = &file
	return &file, nil
}

// GetBaselineVersion implements IBaselineProvider.
func (r *FixtureRegistry) GetBaselineVersion(ctx context.Context, name string) (semver.Version, error) {
	baseline, err := r.loadBaseline()
	if err != nil {
		return semver.Version{}, err
	}
	entry, ok := baseline[name]
	if !ok {
		return semver.Version{}, &ProviderError{Type: ErrTypeNotFound, Source: "fixture", Port: name, Message: "no baseline entry for this port"}
	}
	scheme, err := schemeFromName(entry.Scheme)
	if err != nil {
		return semver.Version{}, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: name, Message: "invalid baseline scheme", Err: err}
	}
	v, err := semver.ParseWithPortVersion(entry.Version, scheme, entry.PortVersion)
	if err != nil {
		return semver.Version{}, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: name, Message: "invalid baseline version", Err: err}
	}
	return v, nil
}

// GetControlFile implements IVersionedPortfileProvider.
func (r *FixtureRegistry) GetControlFile(ctx context.Context, name string, version semver.Version) (*SourceControlFile, error) {
	file, err := r.loadPortFile(name)
	if err != nil {
		return nil, err
	}
	for _, entry := range file.Versions {
		scheme, err := schemeFromName(entry.Scheme)
		if err != nil {
			continue
		}
		candidate, err := semver.ParseWithPortVersion(entry.Version, scheme, entry.PortVersion)
		if err != nil {
			continue
		}
		if semver.Compare(candidate, version) == semver.Equal {
			return fixtureEntryToSCF(name, entry)
		}
	}
	return nil, &ProviderError{Type: ErrTypeNotFound, Source: "fixture", Port: name, Message: fmt.Sprintf("no entry for version %s", version)}
}

func fixtureEntryToSCF(name string, entry fixtureVersionEntry) (*SourceControlFile, error) {
	scheme, err := schemeFromName(entry.Scheme)
	if err != nil {
		return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: name, Message: "invalid version scheme", Err: err}
	}
	version, err := semver.ParseWithPortVersion(entry.Version, scheme, entry.PortVersion)
	if err != nil {
		return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: name, Message: "invalid version", Err: err}
	}

	scf := &SourceControlFile{
		Name:          name,
		Version:       version,
		VersionScheme: scheme,
		PortVersion:   entry.PortVersion,
	}

	if entry.SupportsExpr != "" {
		expr, err := parseExprField(entry.SupportsExpr)
		if err != nil {
			return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: name, Message: "invalid supports_expr", Err: err}
		}
		scf.SupportsExpr = expr
	}

	for _, d := range entry.DefaultFeatures {
		expr, err := parseExprField(d.PlatformExpr)
		if err != nil {
			return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: name, Message: "invalid default_features platform expr", Err: err}
		}
		scf.DefaultFeatures = append(scf.DefaultFeatures, DefaultFeature{Feature: d.Feature, PlatformExpr: expr})
	}

	deps, err := fixtureDependencies(name, entry.Dependencies)
	if err != nil {
		return nil, err
	}
	scf.Dependencies = deps

	for _, f := range entry.Features {
		expr, err := parseExprField(f.SupportsExpr)
		if err != nil {
			return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: name, Message: "invalid feature supports_expr", Err: err}
		}
		fdeps, err := fixtureDependencies(name, f.Dependencies)
		if err != nil {
			return nil, err
		}
		scf.Features = append(scf.Features, FeatureParagraph{Name: f.Name, Dependencies: fdeps, SupportsExpr: expr})
	}

	return scf, nil
}

func fixtureDependencies(portName string, in []fixtureDependency) ([]Dependency, error) {
	out := make([]Dependency, 0, len(in))
	for _, d := range in {
		expr, err := parseExprField(d.PlatformExpr)
		if err != nil {
			return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: portName, Message: "invalid dependency platform expr", Err: err}
		}
		dep := Dependency{Name: d.Name, PlatformExpr: expr, HostFlag: d.Host, NoDefaultFeatures: d.NoDefaultFeatures}
		for _, rf := range d.Features {
			fexpr, err := parseExprField(rf.PlatformExpr)
			if err != nil {
				return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: portName, Message: "invalid requested-feature platform expr", Err: err}
			}
			dep.RequestedFeatures = append(dep.RequestedFeatures, DependencyRequestedFeature{Feature: rf.Feature, PlatformExpr: fexpr})
		}
		if d.VersionGte != "" {
			v, err := semver.Parse(d.VersionGte, semver.Relaxed)
			if err != nil {
				return nil, &ProviderError{Type: ErrTypeParsing, Source: "fixture", Port: portName, Message: "invalid version_gte", Err: err}
			}
			dep.VersionConstraint = &VersionConstraint{Minimum: v}
		}
		out = append(out, dep)
	}
	return out, nil
}
