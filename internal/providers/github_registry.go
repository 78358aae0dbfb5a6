package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v57/github"

	"github.com/tsukumogami/cport/internal/pkgspec"
	"github.com/tsukumogami/cport/internal/semver"
)

// GitHubRegistry resolves the baseline and per-version port files from a
// GitHub-hosted ports repository via the Contents API, at a fixed ref
// (commit SHA, tag, or branch) — the registry-implementation contract only
// names "registries with version databases"; this is one concrete backend,
// not the general git-plumbing registry the spec explicitly excludes.
type GitHubRegistry struct {
	client *github.Client
	owner  string
	repo   string
	ref    string
}

// NewGitHubRegistry returns a registry reading owner/repo at ref. client may
// be authenticated (via an oauth2.Transport-wrapped http.Client) to avoid
// GitHub's unauthenticated rate limit.
func NewGitHubRegistry(client *github.Client, owner, repo, ref string) *GitHubRegistry {
	return &GitHubRegistry{client: client, owner: owner, repo: repo, ref: ref}
}

func (r *GitHubRegistry) sourceName() string {
	return fmt.Sprintf("github:%s/%s@%s", r.owner, r.repo, r.ref)
}

func (r *GitHubRegistry) fetchFile(ctx context.Context, path string) ([]byte, error) {
	opts := &github.RepositoryContentGetOptions{Ref: r.ref}
	file, _, resp, err := r.client.Repositories.GetContents(ctx, r.owner, r.repo, path, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, &ProviderError{Type: ErrTypeNotFound, Source: r.sourceName(), Message: "no such file: " + path, Err: err}
		}
		if resp != nil && resp.StatusCode == 403 {
			return nil, &ProviderError{Type: ErrTypeRateLimit, Source: r.sourceName(), Message: "GitHub API rate limit or permission error", Err: err}
		}
		return nil, &ProviderError{Type: ErrTypeNetwork, Source: r.sourceName(), Message: "failed to fetch " + path, Err: err}
	}
	if file == nil {
		return nil, &ProviderError{Type: ErrTypeNotFound, Source: r.sourceName(), Message: path + " is a directory, not a file"}
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, &ProviderError{Type: ErrTypeParsing, Source: r.sourceName(), Message: "failed to decode base64 content of " + path, Err: err}
	}
	return []byte(content), nil
}

type githubBaselineEntry struct {
	Version     string `json:"version"`
	Scheme      string `json:"scheme"`
	PortVersion int    `json:"port_version"`
}

// GetBaselineVersion implements IBaselineProvider by reading baseline.json
// at the registry's ref: {"<port>": {"version": "...", "scheme": "...", "port_version": N}, ...}.
func (r *GitHubRegistry) GetBaselineVersion(ctx context.Context, name string) (semver.Version, error) {
	data, err := r.fetchFile(ctx, "baseline.json")
	if err != nil {
		return semver.Version{}, err
	}
	var baseline map[string]githubBaselineEntry
	if err := json.Unmarshal(data, &baseline); err != nil {
		return semver.Version{}, &ProviderError{Type: ErrTypeParsing, Source: r.sourceName(), Port: name, Message: "malformed baseline.json", Err: err}
	}
	entry, ok := baseline[name]
	if !ok {
		return semver.Version{}, &ProviderError{Type: ErrTypeNotFound, Source: r.sourceName(), Port: name, Message: "no baseline entry for this port"}
	}
	scheme, err := schemeFromName(entry.Scheme)
	if err != nil {
		return semver.Version{}, &ProviderError{Type: ErrTypeParsing, Source: r.sourceName(), Port: name, Message: "invalid baseline scheme", Err: err}
	}
	return semver.ParseWithPortVersion(entry.Version, scheme, entry.PortVersion)
}

type githubDependency struct {
	Name              string                   `json:"name"`
	Features          []githubRequestedFeature `json:"features"`
	PlatformExpr      string                   `json:"platform"`
	Host              bool                     `json:"host"`
	VersionGte        string                   `json:"version_gte"`
	NoDefaultFeatures bool                     `json:"no_default_features"`
}

type githubRequestedFeature struct {
	Feature      string `json:"feature"`
	PlatformExpr string `json:"platform"`
}

type githubDefaultFeature struct {
	Feature      string `json:"feature"`
	PlatformExpr string `json:"platform"`
}

type githubFeature struct {
	Name         string             `json:"name"`
	Dependencies []githubDependency `json:"dependencies"`
	SupportsExpr string             `json:"supports_expr"`
}

type githubVersionEntry struct {
	Version         string                 `json:"version"`
	Scheme          string                 `json:"scheme"`
	PortVersion     int                    `json:"port_version"`
	Dependencies    []githubDependency     `json:"dependencies"`
	DefaultFeatures []githubDefaultFeature `json:"default_features"`
	SupportsExpr    string                 `json:"supports_expr"`
	Features        []githubFeature        `json:"features"`
}

type githubVersionFile struct {
	Versions []githubVersionEntry `json:"versions"`
}

// GetControlFile implements IVersionedPortfileProvider by reading
// versions/<name>.json and locating the matching entry.
func (r *GitHubRegistry) GetControlFile(ctx context.Context, name string, version semver.Version) (*SourceControlFile, error) {
	data, err := r.fetchFile(ctx, "versions/"+name+".json")
	if err != nil {
		return nil, err
	}
	var file githubVersionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &ProviderError{Type: ErrTypeParsing, Source: r.sourceName(), Port: name, Message: "malformed versions/" + name + ".json", Err: err}
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
			return githubEntryToSCF(r.sourceName(), name, entry)
		}
	}
	return nil, &ProviderError{Type: ErrTypeNotFound, Source: r.sourceName(), Port: name, Message: fmt.Sprintf("no entry for version %s", version)}
}

func githubEntryToSCF(source, name string, entry githubVersionEntry) (*SourceControlFile, error) {
	scheme, err := schemeFromName(entry.Scheme)
	if err != nil {
		return nil, &ProviderError{Type: ErrTypeParsing, Source: source, Port: name, Message: "invalid version scheme", Err: err}
	}
	version, err := semver.ParseWithPortVersion(entry.Version, scheme, entry.PortVersion)
	if err != nil {
		return nil, &ProviderError{Type: ErrTypeParsing, Source: source, Port: name, Message: "invalid version", Err: err}
	}

	scf := &SourceControlFile{Name: name, Version: version, VersionScheme: scheme, PortVersion: entry.PortVersion}

	if entry.SupportsExpr != "" {
		expr, err := pkgspec.ParsePlatformExpr(entry.SupportsExpr)
		if err != nil {
			return nil, &ProviderError{Type: ErrTypeParsing, Source: source, Port: name, Message: "invalid supports_expr", Err: err}
		}
		scf.SupportsExpr = expr
	}
	for _, d := range entry.DefaultFeatures {
		expr, err := parseExprField(d.PlatformExpr)
		if err != nil {
			return nil, &ProviderError{Type: ErrTypeParsing, Source: source, Port: name, Message: "invalid default_features platform expr", Err: err}
		}
		scf.DefaultFeatures = append(scf.DefaultFeatures, DefaultFeature{Feature: d.Feature, PlatformExpr: expr})
	}
	deps, err := githubDependencies(source, name, entry.Dependencies)
	if err != nil {
		return nil, err
	}
	scf.Dependencies = deps
	for _, f := range entry.Features {
		expr, err := parseExprField(f.SupportsExpr)
		if err != nil {
			return nil, &ProviderError{Type: ErrTypeParsing, Source: source, Port: name, Message: "invalid feature supports_expr", Err: err}
		}
		fdeps, err := githubDependencies(source, name, f.Dependencies)
		if err != nil {
			return nil, err
		}
		scf.Features = append(scf.Features, FeatureParagraph{Name: f.Name, Dependencies: fdeps, SupportsExpr: expr})
	}
	return scf, nil
}

func githubDependencies(source, portName string, in []githubDependency) ([]Dependency, error) {
	out := make([]Dependency, 0, len(in))
	for _, d := range in {
		expr, err := parseExprField(d.PlatformExpr)
		if err != nil {
			return nil, &ProviderError{Type: ErrTypeParsing, Source: source, Port: portName, Message: "invalid dependency platform expr", Err: err}
		}
		dep := Dependency{Name: d.Name, PlatformExpr: expr, HostFlag: d.Host, NoDefaultFeatures: d.NoDefaultFeatures}
		for _, rf := range d.Features {
			fexpr, err := parseExprField(rf.PlatformExpr)
			if err != nil {
				return nil, &ProviderError{Type: ErrTypeParsing, Source: source, Port: portName, Message: "invalid requested-feature platform expr", Err: err}
			}
			dep.RequestedFeatures = append(dep.RequestedFeatures, DependencyRequestedFeature{Feature: rf.Feature, PlatformExpr: fexpr})
		}
		if d.VersionGte != "" {
			v, err := semver.Parse(d.VersionGte, semver.Relaxed)
			if err != nil {
				return nil, &ProviderError{Type: ErrTypeParsing, Source: source, Port: portName, Message: "invalid version_gte", Err: err}
			}
			dep.VersionConstraint = &VersionConstraint{Minimum: v}
		}
		out = append(out, dep)
	}
	return out, nil
}
