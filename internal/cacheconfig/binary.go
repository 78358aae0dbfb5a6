package cacheconfig

import (
	"path/filepath"
	"strconv"
)

// ParseBinarySources parses one VCPKG_BINARY_SOURCES-shaped string (or one
// --binarysource argument) against an accumulator, in order. Diagnostics
// from this call are appended to the returned slice; parsing halts on the
// first error within each source but continues on to the next source.
func ParseBinarySources(raw string, cfg *BinaryConfig) []Diagnostic {
	var diags []Diagnostic

	for _, src := range splitSources(raw) {
		if src.text == "" {
			continue // empty source (";;") is skipped
		}
		segs := splitSegments(src)
		kind := segs[0].text

		switch kind {
		case "clear":
			cfg.Providers = nil
			cfg.Secrets = nil
			cfg.AWSNoSign = false

		case "default":
			access := AccessRead
			if len(segs) > 1 {
				a, ok := parseAccess(segs[1].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[1].pos, Source: src.text, Message: "invalid access mode for 'default'"})
					continue
				}
				access = a
			}
			cfg.Providers = append(cfg.Providers, ProviderConfig{Kind: SourceFiles, Access: access, Path: ""})

		case "files":
			if len(segs) < 2 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'files' requires an absolute path"})
				continue
			}
			if !filepath.IsAbs(segs[1].text) {
				diags = append(diags, Diagnostic{Pos: segs[1].pos, Source: src.text, Message: "'files' path must be absolute"})
				continue
			}
			access := AccessRead
			if len(segs) > 2 {
				a, ok := parseAccess(segs[2].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[2].pos, Source: src.text, Message: "invalid access mode for 'files'"})
					continue
				}
				access = a
			}
			cfg.Providers = append(cfg.Providers, ProviderConfig{Kind: SourceFiles, Access: access, Path: segs[1].text})

		case "http":
			if len(segs) < 2 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'http' requires a URL template"})
				continue
			}
			access := AccessRead
			if len(segs) > 2 {
				a, ok := parseAccess(segs[2].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[2].pos, Source: src.text, Message: "invalid access mode for 'http'"})
					continue
				}
				access = a
			}
			var header string
			if len(segs) > 3 {
				header = segs[3].text
			}
			cfg.Providers = append(cfg.Providers, ProviderConfig{Kind: SourceHTTP, Access: access, URLTemplate: segs[1].text, Header: header})

		case "x-azblob":
			if len(segs) < 3 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'x-azblob' requires a base URL and SAS token"})
				continue
			}
			access := AccessRead
			if len(segs) > 3 {
				a, ok := parseAccess(segs[3].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[3].pos, Source: src.text, Message: "invalid access mode for 'x-azblob'"})
					continue
				}
				access = a
			}
			cfg.Secrets = append(cfg.Secrets, segs[2].text)
			cfg.Providers = append(cfg.Providers, ProviderConfig{Kind: SourceAzBlob, Access: access, URLTemplate: segs[1].text, SAS: segs[2].text})

		case "x-gcs", "x-aws", "x-cos":
			if len(segs) < 2 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'" + kind + "' requires a bucket prefix"})
				continue
			}
			access := AccessRead
			if len(segs) > 2 {
				a, ok := parseAccess(segs[2].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[2].pos, Source: src.text, Message: "invalid access mode for '" + kind + "'"})
					continue
				}
				access = a
			}
			k := map[string]SourceKind{"x-gcs": SourceGCS, "x-aws": SourceAWS, "x-cos": SourceCOS}[kind]
			p := ProviderConfig{Kind: k, Access: access, Prefix: segs[1].text}
			if k == SourceAWS {
				p.AWSNoSignRequest = cfg.AWSNoSign
			}
			cfg.Providers = append(cfg.Providers, p)

		case "x-aws-config":
			if len(segs) < 2 || segs[1].text != "no-sign-request" {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'x-aws-config' only supports 'no-sign-request'"})
				continue
			}
			cfg.AWSNoSign = true

		case "x-gha":
			access := AccessRead
			if len(segs) > 1 {
				a, ok := parseAccess(segs[1].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[1].pos, Source: src.text, Message: "invalid access mode for 'x-gha'"})
					continue
				}
				access = a
			}
			cfg.Providers = append(cfg.Providers, ProviderConfig{Kind: SourceGHA, Access: access})

		case "nuget":
			if len(segs) < 2 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'nuget' requires a source URI"})
				continue
			}
			access := AccessRead
			if len(segs) > 2 {
				a, ok := parseAccess(segs[2].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[2].pos, Source: src.text, Message: "invalid access mode for 'nuget'"})
					continue
				}
				access = a
			}
			cfg.Providers = append(cfg.Providers, ProviderConfig{Kind: SourceNuGet, Access: access, NuGetURI: segs[1].text})

		case "nugetconfig":
			if len(segs) < 2 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'nugetconfig' requires a path"})
				continue
			}
			access := AccessRead
			if len(segs) > 2 {
				a, ok := parseAccess(segs[2].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[2].pos, Source: src.text, Message: "invalid access mode for 'nugetconfig'"})
					continue
				}
				access = a
			}
			cfg.Providers = append(cfg.Providers, ProviderConfig{Kind: SourceNuGet, Access: access, NuGetConfigPath: segs[1].text})

		case "nugettimeout":
			if len(segs) < 2 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'nugettimeout' requires a number of seconds"})
				continue
			}
			secs, err := strconv.Atoi(segs[1].text)
			if err != nil || secs <= 0 {
				diags = append(diags, Diagnostic{Pos: segs[1].pos, Source: src.text, Message: "'nugettimeout' requires a positive integer"})
				continue
			}
			applyToAllNuGet(cfg, func(p *ProviderConfig) { p.NuGetTimeout = secs })

		case "interactive":
			applyToAllNuGet(cfg, func(p *ProviderConfig) { p.Interactive = true })

		default:
			diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "unrecognized binary cache source kind '" + kind + "'"})
		}
	}

	return diags
}

func applyToAllNuGet(cfg *BinaryConfig, fn func(*ProviderConfig)) {
	for i := range cfg.Providers {
		if cfg.Providers[i].Kind == SourceNuGet {
			fn(&cfg.Providers[i])
		}
	}
}

// ParseDefaultBinaryConfig parses the VCPKG_BINARY_SOURCES environment
// variable value followed by a sequence of --binarysource CLI arguments, in
// order, after prepending the implicit "default,readwrite" source (spec.md
// §6). An explicit "clear" anywhere — including inside envRaw itself —
// wipes everything configured before it, matching §4.6/§6's semantics.
func ParseDefaultBinaryConfig(envRaw string, cliArgs []string) (*BinaryConfig, []Diagnostic) {
	cfg := &BinaryConfig{}
	var diags []Diagnostic

	diags = append(diags, ParseBinarySources("default,readwrite", cfg)...)
	diags = append(diags, ParseBinarySources(envRaw, cfg)...)
	for _, arg := range cliArgs {
		diags = append(diags, ParseBinarySources(arg, cfg)...)
	}

	return cfg, diags
}
