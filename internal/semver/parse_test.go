package semver

import "testing"

func TestParseSemver(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain", "1.2.3", false},
		{"prerelease", "1.2.3-rc.1", false},
		{"build metadata", "1.2.3+build5", false},
		{"missing patch", "1.2", true},
		{"non-numeric", "a.b.c", true},
		{"leading v not strict", "v1.2.3", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, Semver)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q, Semver) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}

func TestParseRelaxed(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"single component", "5", false},
		{"many components", "1.2.3.4.5", false},
		{"with prerelease", "1.2-beta.3", false},
		{"with build ignored", "1.2.3+20240105", false},
		{"empty", "", true},
		{"non-numeric component", "1.x.3", true},
		{"negative component", "1.-2.3", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, Relaxed)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q, Relaxed) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain date", "2024-01-05", false},
		{"with disambiguator", "2024-01-05.1", false},
		{"multiple disambiguators", "2024-01-05.1.2", false},
		{"bare zero component allowed", "2024-01-05.0", false},
		{"leading zero disambiguator rejected", "2024-01-05.01", true},
		{"wrong shape", "2024-01", true},
		{"non-numeric", "2024-aa-05", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, Date)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q, Date) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}

func TestParseString(t *testing.T) {
	v, err := Parse("any-text-at-all", String)
	if err != nil {
		t.Fatalf("Parse(String) failed: %v", err)
	}
	if v.Text != "any-text-at-all" {
		t.Errorf("Text = %q, want original text preserved verbatim", v.Text)
	}
}

func TestParseNegativePortVersionRejected(t *testing.T) {
	_, err := ParseWithPortVersion("1.2.3", Semver, -1)
	if err == nil {
		t.Fatal("expected error for negative port_version")
	}
}
