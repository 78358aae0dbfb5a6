package pkgspec

import (
	"errors"
	"testing"
)

func TestParsePlatformExprEval(t *testing.T) {
	tests := []struct {
		name string
		expr string
		vars map[string]bool
		want bool
	}{
		{"simple var true", "windows", map[string]bool{"windows": true}, true},
		{"simple var false", "windows", map[string]bool{"windows": false}, false},
		{"negation", "!windows", map[string]bool{"windows": false}, true},
		{"and both true", "windows & x64", map[string]bool{"windows": true, "x64": true}, true},
		{"and one false", "windows & x64", map[string]bool{"windows": true, "x64": false}, false},
		{"or either true", "windows | linux", map[string]bool{"windows": false, "linux": true}, true},
		{"parens override", "!windows & (x64 | arm64)", map[string]bool{"windows": false, "x64": false, "arm64": true}, true},
		{"nested not", "!(windows & x64)", map[string]bool{"windows": true, "x64": true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParsePlatformExpr(tt.expr)
			if err != nil {
				t.Fatalf("ParsePlatformExpr(%q) failed: %v", tt.expr, err)
			}
			got, err := e.Eval(tt.vars)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParsePlatformExprMixedOperatorsRejected(t *testing.T) {
	_, err := ParsePlatformExpr("windows & x64 | arm64")
	if err == nil {
		t.Fatal("expected parse error for mixed & and | without parens")
	}
}

func TestParsePlatformExprMixedOperatorsAllowedWithParens(t *testing.T) {
	e, err := ParsePlatformExpr("windows & (x64 | arm64)")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	got, err := e.Eval(map[string]bool{"windows": true, "x64": false, "arm64": true})
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("expected true")
	}
}

func TestEvalUnknownVariable(t *testing.T) {
	e, err := ParsePlatformExpr("freebsd")
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Eval(map[string]bool{"windows": true})
	var uv *UnknownVariableError
	if err == nil {
		t.Fatal("expected error for unknown variable")
	}
	if !errors.As(err, &uv) {
		t.Errorf("expected *UnknownVariableError, got %T", err)
	}
}
