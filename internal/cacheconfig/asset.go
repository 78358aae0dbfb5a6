package cacheconfig

// ParseAssetSources parses one asset-cache-sources-shaped string against an
// accumulator, using the same segment grammar as binary sources but
// recognizing a different, smaller set of source kinds (spec.md §4.6).
func ParseAssetSources(raw string, cfg *AssetConfig) []Diagnostic {
	var diags []Diagnostic

	for _, src := range splitSources(raw) {
		if src.text == "" {
			continue
		}
		segs := splitSegments(src)
		kind := segs[0].text

		switch kind {
		case "clear":
			cfg.Sources = nil
			cfg.BlockOrigin = false

		case "x-block-origin":
			cfg.BlockOrigin = true

		case "x-azurl":
			if len(segs) < 2 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'x-azurl' requires a base URL"})
				continue
			}
			access := AccessRead
			var sas string
			if len(segs) > 2 {
				sas = segs[2].text
			}
			if len(segs) > 3 {
				a, ok := parseAccess(segs[3].text)
				if !ok {
					diags = append(diags, Diagnostic{Pos: segs[3].pos, Source: src.text, Message: "invalid access mode for 'x-azurl'"})
					continue
				}
				access = a
			}
			cfg.Sources = append(cfg.Sources, AssetSourceConfig{Kind: AssetAzURL, Access: access, URL: segs[1].text, SAS: sas})

		case "x-script":
			if len(segs) < 2 {
				diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "'x-script' requires a command template"})
				continue
			}
			cfg.Sources = append(cfg.Sources, AssetSourceConfig{Kind: AssetScript, ScriptTemplate: segs[1].text})

		default:
			diags = append(diags, Diagnostic{Pos: src.pos, Source: src.text, Message: "unrecognized asset cache source kind '" + kind + "'"})
		}
	}

	return diags
}

// ExpandScriptTemplate substitutes {url}, {sha512}, {dst} placeholders into
// an x-script template, treating "{{" and "}}" as literal braces.
func ExpandScriptTemplate(template, url, sha512, dst string) string {
	var out []byte
	for i := 0; i < len(template); i++ {
		switch {
		case i+1 < len(template) && template[i] == '{' && template[i+1] == '{':
			out = append(out, '{')
			i++
		case i+1 < len(template) && template[i] == '}' && template[i+1] == '}':
			out = append(out, '}')
			i++
		case hasPlaceholder(template, i, "{url}"):
			out = append(out, url...)
			i += len("{url}") - 1
		case hasPlaceholder(template, i, "{sha512}"):
			out = append(out, sha512...)
			i += len("{sha512}") - 1
		case hasPlaceholder(template, i, "{dst}"):
			out = append(out, dst...)
			i += len("{dst}") - 1
		default:
			out = append(out, template[i])
		}
	}
	return string(out)
}

func hasPlaceholder(s string, i int, ph string) bool {
	return i+len(ph) <= len(s) && s[i:i+len(ph)] == ph
}
