package cacheconfig

import "testing"

func TestParseBinarySourcesIdempotentClear(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("default,readwrite;clear;default,readwrite", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("expected exactly one provider, got %d", len(cfg.Providers))
	}
	if cfg.Providers[0].Kind != SourceFiles {
		t.Errorf("expected a file provider, got %v", cfg.Providers[0].Kind)
	}
	if cfg.Providers[0].Access != AccessReadWrite {
		t.Errorf("expected readwrite access, got %v", cfg.Providers[0].Access)
	}
}

func TestParseBinarySourcesSkipsEmptySources(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("default;;files,/tmp/cache", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(cfg.Providers))
	}
}

func TestParseBinarySourcesFiles(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("files,/var/cache/cport,readwrite", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(cfg.Providers))
	}
	p := cfg.Providers[0]
	if p.Kind != SourceFiles || p.Path != "/var/cache/cport" || p.Access != AccessReadWrite {
		t.Errorf("unexpected provider: %+v", p)
	}
}

func TestParseBinarySourcesFilesRejectsRelativePath(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("files,relative/path", cfg)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d: %v", len(diags), diags)
	}
	if len(cfg.Providers) != 0 {
		t.Errorf("expected no provider to be added on error")
	}
}

func TestParseBinarySourcesHTTP(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("http,https://cache.example/{sha},readwrite,X-Auth: token", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	p := cfg.Providers[0]
	if p.Kind != SourceHTTP || p.URLTemplate != "https://cache.example/{sha}" || p.Header != "X-Auth: token" {
		t.Errorf("unexpected provider: %+v", p)
	}
}

func TestParseBinarySourcesAzBlobAddsSecret(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("x-azblob,https://acct.blob.core.windows.net/container,sv=2021&sig=abc,readwrite", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(cfg.Secrets) != 1 || cfg.Secrets[0] != "sv=2021&sig=abc" {
		t.Errorf("expected SAS token recorded as a secret, got %v", cfg.Secrets)
	}
}

func TestParseBinarySourcesAWSNoSignRequestAppliesToFollowingAWS(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("x-aws-config,no-sign-request;x-aws,s3://bucket/prefix", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(cfg.Providers) != 1 || !cfg.Providers[0].AWSNoSignRequest {
		t.Errorf("expected the x-aws provider to inherit no-sign-request, got %+v", cfg.Providers)
	}
}

func TestParseBinarySourcesNuGetTimeoutAppliesToAllNuGetProviders(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("nuget,https://pkgs.example/v3/index.json;nugettimeout,120", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if cfg.Providers[0].NuGetTimeout != 120 {
		t.Errorf("expected nugettimeout 120, got %d", cfg.Providers[0].NuGetTimeout)
	}
}

func TestParseBinarySourcesBacktickEscapesSeparators(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("files,/tmp/cache`,with`;comma,readwrite", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if cfg.Providers[0].Path != "/tmp/cache,with;comma" {
		t.Errorf("unexpected unescaped path: %q", cfg.Providers[0].Path)
	}
}

func TestParseBinarySourcesUnknownKindProducesDiagnostic(t *testing.T) {
	cfg := &BinaryConfig{}
	diags := ParseBinarySources("not-a-real-source,foo", cfg)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Pos != 0 {
		t.Errorf("expected diagnostic at byte 0, got %d", diags[0].Pos)
	}
}

func TestParseDefaultBinaryConfigPrependsImplicitDefault(t *testing.T) {
	cfg, diags := ParseDefaultBinaryConfig("", nil)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Kind != SourceFiles {
		t.Fatalf("expected the implicit default provider, got %+v", cfg.Providers)
	}
}

func TestParseDefaultBinaryConfigCLIArgsAppendInOrder(t *testing.T) {
	cfg, diags := ParseDefaultBinaryConfig("clear", []string{"files,/a", "files,/b"})
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(cfg.Providers) != 2 || cfg.Providers[0].Path != "/a" || cfg.Providers[1].Path != "/b" {
		t.Fatalf("unexpected providers: %+v", cfg.Providers)
	}
}

func TestParseAssetSourcesAzURL(t *testing.T) {
	cfg := &AssetConfig{}
	diags := ParseAssetSources("x-azurl,https://acct.blob.core.windows.net/container,sv=token,readwrite", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].SAS != "sv=token" {
		t.Errorf("unexpected sources: %+v", cfg.Sources)
	}
}

func TestParseAssetSourcesBlockOrigin(t *testing.T) {
	cfg := &AssetConfig{}
	diags := ParseAssetSources("x-block-origin", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if !cfg.BlockOrigin {
		t.Error("expected BlockOrigin to be set")
	}
}

func TestExpandScriptTemplate(t *testing.T) {
	got := ExpandScriptTemplate("curl -o {dst} {url} # sha512={sha512} {{literal}}", "https://x/y", "abc123", "/tmp/out")
	want := "curl -o /tmp/out https://x/y # sha512=abc123 {literal}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseAssetSourcesScript(t *testing.T) {
	cfg := &AssetConfig{}
	diags := ParseAssetSources("x-script,curl -o {dst} {url}", cfg)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if cfg.Sources[0].Kind != AssetScript || cfg.Sources[0].ScriptTemplate != "curl -o {dst} {url}" {
		t.Errorf("unexpected source: %+v", cfg.Sources[0])
	}
}
