package cel

import (
	"strings"
	"testing"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompile_ValidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`capability == "patient.search" ? 0.9 : 0.5`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if prg == nil {
		t.Fatal("Compile() returned nil program")
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	_, err = eval.Compile(`this is not valid CEL !!!`)
	if err == nil {
		t.Fatal("Compile() expected error for invalid expression, got nil")
	}
}

func TestEvaluate_ConditionalReward(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`capability == "patient.search" ? 0.9 : 0.2`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	vars := map[string]any{
		"tool":       map[string]any{"id": "t1"},
		"capability": "patient.search",
		"tenant":     "acme",
		"input":      map[string]any{},
	}

	result, err := eval.Evaluate(prg, vars)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result != 0.9 {
		t.Errorf("expected 0.9, got %v", result)
	}
}

func TestEvaluate_ToolFieldAccess(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool["id"] == "fast" ? 1.0 : 0.0`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	vars := map[string]any{
		"tool":       map[string]any{"id": "fast"},
		"capability": "patient.search",
		"tenant":     "",
		"input":      map[string]any{},
	}

	result, err := eval.Evaluate(prg, vars)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result != 1.0 {
		t.Errorf("expected 1.0, got %v", result)
	}
}

func TestEvaluate_ClampsToUnitRange(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`5.0`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	vars := map[string]any{
		"tool":       map[string]any{},
		"capability": "x",
		"tenant":     "",
		"input":      map[string]any{},
	}

	result, err := eval.Evaluate(prg, vars)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result != 1.0 {
		t.Errorf("expected clamp to 1.0, got %v", result)
	}
}

func TestValidateExpression_Valid(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []string{
		`capability == "patient.search" ? 0.9 : 0.5`,
		`tenant == "acme" ? 1.0 : 0.0`,
		`0.5`,
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			if err := eval.ValidateExpression(expr); err != nil {
				t.Errorf("ValidateExpression(%q) unexpected error: %v", expr, err)
			}
		})
	}
}

func TestValidateExpression_Invalid(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"empty", "", "empty"},
		{"syntax error", "this is not valid !!!", "invalid CEL"},
		{"undefined var", "nonexistent_var == true", "invalid CEL"},
		{"too long", strings.Repeat("a", 1025), "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if err == nil {
				t.Fatalf("ValidateExpression(%q) expected error, got nil", tt.expr)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateExpression_NestingDepth(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	buildNested := func(depth int) string {
		var b strings.Builder
		for i := 0; i < depth; i++ {
			b.WriteByte('(')
		}
		b.WriteString("1.0")
		for i := 0; i < depth; i++ {
			b.WriteByte(')')
		}
		return b.String()
	}

	t.Run("at_limit_50_levels_accepted", func(t *testing.T) {
		if err := eval.ValidateExpression(buildNested(50)); err != nil {
			t.Errorf("expression at nesting limit (50) should be valid, got: %v", err)
		}
	})

	t.Run("over_limit_51_levels_rejected", func(t *testing.T) {
		err := eval.ValidateExpression(buildNested(51))
		if err == nil {
			t.Fatal("expected error for 51 levels of nesting, got nil")
		}
		if !strings.Contains(err.Error(), "nesting too deep") {
			t.Errorf("error %q should contain 'nesting too deep'", err.Error())
		}
	})
}

func TestValidateNesting(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"no_nesting", "1.0", false},
		{"single_level", "(1.0)", false},
		{"50_levels", strings.Repeat("(", 50) + "1.0" + strings.Repeat(")", 50), false},
		{"51_levels", strings.Repeat("(", 51) + "1.0" + strings.Repeat(")", 51), true},
		{"empty_string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNesting(tt.expr)
			if tt.wantErr && err == nil {
				t.Errorf("validateNesting(%q) expected error, got nil", tt.name)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateNesting(%q) unexpected error: %v", tt.name, err)
			}
		})
	}
}
