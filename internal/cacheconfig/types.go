// Package cacheconfig parses the VCPKG_BINARY_SOURCES / --binarysource
// segment grammar (spec.md §4.6) into a normalized list of provider and
// asset-source configurations, with source-location-aware diagnostics.
package cacheconfig

import "fmt"

// Access controls which operations a provider may perform.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessReadWrite
)

func (a Access) CanRead() bool  { return a == AccessRead || a == AccessReadWrite }
func (a Access) CanWrite() bool { return a == AccessWrite || a == AccessReadWrite }

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "readwrite"
	default:
		return "read"
	}
}

func parseAccess(s string) (Access, bool) {
	switch s {
	case "", "read":
		return AccessRead, true
	case "write":
		return AccessWrite, true
	case "readwrite":
		return AccessReadWrite, true
	default:
		return AccessRead, false
	}
}

// SourceKind identifies which binary-cache backend a ProviderConfig targets.
type SourceKind int

const (
	SourceFiles SourceKind = iota
	SourceHTTP
	SourceAzBlob
	SourceGCS
	SourceAWS
	SourceCOS
	SourceGHA
	SourceNuGet
)

func (k SourceKind) String() string {
	switch k {
	case SourceFiles:
		return "files"
	case SourceHTTP:
		return "http"
	case SourceAzBlob:
		return "x-azblob"
	case SourceGCS:
		return "x-gcs"
	case SourceAWS:
		return "x-aws"
	case SourceCOS:
		return "x-cos"
	case SourceGHA:
		return "x-gha"
	case SourceNuGet:
		return "nuget"
	default:
		return "unknown"
	}
}

// ProviderConfig is one normalized binary-cache source.
type ProviderConfig struct {
	Kind   SourceKind
	Access Access

	// Files / default
	Path string

	// HTTP / x-azblob
	URLTemplate string
	Header      string

	// x-azblob
	SAS string

	// x-gcs / x-aws / x-cos
	Prefix           string
	AWSNoSignRequest bool

	// nuget / nugetconfig
	NuGetURI        string
	NuGetConfigPath string
	NuGetTimeout    int // seconds, 0 means unset
	Interactive     bool
}

// AssetSourceKind identifies an asset-cache (source download mirror) backend.
type AssetSourceKind int

const (
	AssetAzURL AssetSourceKind = iota
	AssetScript
)

// AssetSourceConfig is one normalized asset-cache source.
type AssetSourceConfig struct {
	Kind         AssetSourceKind
	Access       Access
	URL          string // x-azurl base
	SAS          string // x-azurl secret
	ScriptTemplate string
}

// BinaryConfig is the accumulated result of parsing VCPKG_BINARY_SOURCES
// plus any appended --binarysource arguments, in order.
type BinaryConfig struct {
	Providers     []ProviderConfig
	Secrets       []string // values that must be redacted from logs
	BlockOrigin   bool
	AWSNoSign     bool
}

// AssetConfig is the accumulated result of parsing the asset-sources
// environment variable.
type AssetConfig struct {
	Sources     []AssetSourceConfig
	BlockOrigin bool
}

// Diagnostic is one parse error, carrying enough context to point at the
// offending source within the original string.
type Diagnostic struct {
	Pos     int // byte offset into the original input
	Source  string
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s (at byte %d, source %q)", d.Message, d.Pos, d.Source)
}
