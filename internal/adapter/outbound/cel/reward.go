package cel

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"caprouter/internal/domain/registry"
	"caprouter/internal/domain/scoring"
)

// RewardOverrides holds one compiled reward expression per tenant, letting
// the scorer's neutral 0.5 placeholder be overridden per tenant without the
// scoring package depending on CEL directly.
type RewardOverrides struct {
	eval     *Evaluator
	programs map[string]cel.Program
}

// NewRewardOverrides compiles every tenant->expression pair up front; a
// compile failure for any tenant fails the whole set, matching the
// registry loader's "rebuild fails as a unit" posture.
func NewRewardOverrides(exprByTenant map[string]string) (*RewardOverrides, error) {
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	r := &RewardOverrides{eval: eval, programs: make(map[string]cel.Program, len(exprByTenant))}
	for tenant, expr := range exprByTenant {
		if err := eval.ValidateExpression(expr); err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tenant, err)
		}
		prg, err := eval.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tenant, err)
		}
		r.programs[tenant] = prg
	}
	return r, nil
}

// RewardFunc returns a scoring.RewardFunc bound to tenant's compiled
// expression. It returns nil for a tenant with no override, so the caller
// can fall back to the scoring package's neutral 0.5. An expression that
// fails at evaluation time yields 0.5 for that candidate.
func (r *RewardOverrides) RewardFunc(tenant string) scoring.RewardFunc {
	prg, ok := r.programs[tenant]
	if !ok {
		return nil
	}
	return func(tool registry.Tool, ctx scoring.Context) float64 {
		reward, err := r.eval.Evaluate(prg, toolVars(tool, ctx))
		if err != nil {
			return 0.5
		}
		return reward
	}
}

func toolVars(tool registry.Tool, ctx scoring.Context) map[string]any {
	toolMap := map[string]any{
		"id":      tool.ID,
		"name":    tool.Name,
		"version": tool.Version,
	}
	if tool.CostEstimate != nil {
		toolMap["cost_estimate"] = *tool.CostEstimate
	}
	if tool.SLA != nil {
		toolMap["sla_p95_ms"] = tool.SLA.P95Ms
		toolMap["sla_success_rate_min"] = tool.SLA.SuccessRateMin
	}
	input := ctx.Input
	if input == nil {
		input = map[string]any{}
	}
	return map[string]any{
		"tool":       toolMap,
		"capability": ctx.Capability,
		"tenant":     ctx.Tenant,
		"input":      input,
	}
}
