// Package cel provides a CEL-based optional override for the scorer's
// reward term. Policy pre/post-checks are schema- and string-grammar-driven
// and don't need a general expression language; the scorer's reward term is
// the one place a tenant plausibly wants an arbitrary formula, so that is
// where CEL is bound.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// maxExpressionLength is the maximum allowed length for a reward expression.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit, guarding against pathological
// expressions inflating scoring latency.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL expressions against the variables a
// reward override may condition on: tool, capability, tenant, input.
type Evaluator struct {
	env *cel.Env
}

// NewRewardEnvironment builds the CEL environment for reward expressions.
func NewRewardEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("tool", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("capability", cel.StringType),
		cel.Variable("tenant", cel.StringType),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewEvaluator creates a new CEL evaluator with the reward environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewRewardEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create reward environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks a CEL expression, returning a compiled program.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a CEL expression is syntactically valid and
// safe to compile: bounded length, bounded nesting, and a successful compile.
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if expr == "" {
		return errors.New("expression is empty")
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}
	return nil
}

// Evaluate runs a compiled CEL program against the given variables and
// clamps the result to [0,1], the reward term's valid range.
func (e *Evaluator) Evaluate(prg cel.Program, vars map[string]any) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return 0, fmt.Errorf("evaluation failed: %w", err)
	}

	var f float64
	switch v := result.Value().(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	default:
		return 0, fmt.Errorf("reward expression must return a number, got %T", result.Value())
	}

	return clamp01(f), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
