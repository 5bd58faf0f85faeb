package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"caprouter/internal/adapter/outbound/metrics"
	"caprouter/internal/domain/plan"
	"caprouter/internal/domain/policy"
	"caprouter/internal/domain/registry"
	"caprouter/internal/domain/routererr"
	"caprouter/internal/domain/scoring"
	"caprouter/internal/domain/trace"
	"caprouter/internal/port/outbound"
)

// offlineEnvVar is the process-scoped indicator that nullifies candidates
// declaring requiresNetwork.
const offlineEnvVar = "CAPROUTER_OFFLINE"

// Planner is the orchestration core: filter → score → sort → execute with
// typed-outcome fallback, under two composed deadlines.
type Planner struct {
	registry outbound.RegistryService
	policy   policy.Service // nil is valid: no tenant policy gate
	scorer   scoring.Scorer
	executor outbound.Executor
	traces   trace.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPlanner constructs a Planner. policy may be nil to skip pre/post checks.
func NewPlanner(
	reg outbound.RegistryService,
	pol policy.Service,
	scorer scoring.Scorer,
	exec outbound.Executor,
	traces trace.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{registry: reg, policy: pol, scorer: scorer, executor: exec, traces: traces, metrics: m, logger: logger}
}

// Plan runs one decision end to end: pre-check, filter, score, and
// (optionally) execute with fallback.
func (p *Planner) Plan(ctx context.Context, pctx plan.Context) (*plan.Result, error) {
	// The overall deadline starts at plan entry, spanning every later stage,
	// not just the execute loop.
	overallCtx, cancel := OverallDeadline(ctx, pctx.TimeoutMs)
	defer cancel()

	traceID := p.traces.Create()
	if p.metrics != nil {
		p.metrics.TraceCreatedTotal.Inc()
	}
	p.record(traceID, trace.EventRequest, map[string]any{
		"tenant":     pctx.Tenant,
		"capability": pctx.Capability,
	})

	result := &plan.Result{TraceID: traceID, Capability: pctx.Capability}

	if pctx.Capability == "" {
		return result, routererr.New(routererr.CodeInputInvalid, "capability is required")
	}

	if p.policy != nil {
		pre := p.policy.PreCheck(pctx.Tenant, pctx.Capability, pctx.Input, time.Time{})
		if !pre.Allow {
			return result, routererr.New(routererr.Code(pre.Code), pre.Detail)
		}
	}

	tools := p.registry.List() // snapshot-stable for this call
	candidates := filterByCapability(tools, pctx.Capability)
	candidates = filterByPreconditions(candidates)

	if len(candidates) == 0 {
		p.record(traceID, trace.EventNoCandidates, nil)
		return result, routererr.New(routererr.CodeNoCandidates, "no candidates for capability "+pctx.Capability)
	}

	scored := p.scoreAndSort(traceID, pctx, candidates)
	result.Candidates = scored

	if !pctx.Execute {
		if len(scored) > 0 {
			result.Selected = &plan.Selection{ToolID: scored[0].ToolID}
		}
		return result, nil
	}

	exec, selected := p.executeLoop(overallCtx, traceID, pctx, scored)
	result.Execution = &exec
	result.Selected = selected
	return result, nil
}

// scoreAndSort bids every candidate, emits the scores trace event, and
// returns them sorted by non-increasing score with stable order on ties.
func (p *Planner) scoreAndSort(traceID string, pctx plan.Context, tools []registry.Tool) []plan.Candidate {
	scoreCtx := scoring.Context{Tenant: pctx.Tenant, Capability: pctx.Capability, Input: pctx.Input}
	candidates := make([]plan.Candidate, len(tools))
	scoresData := make([]map[string]any, len(tools))
	for i, t := range tools {
		score := p.scorer.Score(t, scoreCtx)
		candidates[i] = plan.Candidate{ToolID: t.ID, Score: score, Tool: t}
		scoresData[i] = map[string]any{"toolId": t.ID, "score": score}
		if p.metrics != nil {
			p.metrics.PlannerBidsTotal.WithLabelValues(pctx.Capability, t.ID).Inc()
		}
	}
	p.record(traceID, trace.EventScores, map[string]any{"scores": scoresData})

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// executeLoop attempts candidates strictly sequentially in rank order.
func (p *Planner) executeLoop(overallCtx context.Context, traceID string, pctx plan.Context, candidates []plan.Candidate) (plan.ExecutionResult, *plan.Selection) {
	for rank, cand := range candidates {
		p.record(traceID, trace.EventAttempt, map[string]any{"toolId": cand.ToolID, "rank": rank})

		res, selected, done := p.attempt(overallCtx, traceID, pctx, cand)
		if done {
			return res, selected
		}

		if OverallFired(overallCtx) {
			reason := "overall deadline exceeded"
			p.record(traceID, trace.EventTimeout, map[string]any{"reason": reason})
			return plan.Timeout(reason, nil), nil
		}
	}

	p.record(traceID, trace.EventFailure, map[string]any{"error": "ALL_CANDIDATES_FAILED"})
	return plan.Failure("ALL_CANDIDATES_FAILED", nil), nil
}

// attempt runs a single candidate's execution and post-check, reporting
// whether the loop is done (terminal outcome reached) or should continue to
// the next candidate.
func (p *Planner) attempt(overallCtx context.Context, traceID string, pctx plan.Context, cand plan.Candidate) (plan.ExecutionResult, *plan.Selection, bool) {
	attemptCtx, cancel := AttemptAbort(overallCtx, cand.Tool.Endpoint.TimeoutOrDefault())
	defer cancel()

	res, err := p.executor.Execute(attemptCtx, cand.Tool, pctx.Input)
	if err != nil {
		if OverallFired(overallCtx) {
			reason := "overall deadline exceeded"
			p.record(traceID, trace.EventTimeout, map[string]any{"reason": reason})
			return plan.Timeout(reason, nil), nil, true
		}
		p.record(traceID, trace.EventFallback, map[string]any{"toolId": cand.ToolID, "error": err.Error()})
		if p.metrics != nil {
			p.metrics.PlannerFallbacksTotal.WithLabelValues(pctx.Capability).Inc()
		}
		return plan.ExecutionResult{}, nil, false
	}

	switch res.Status {
	case plan.StatusSuccess:
		if p.policy != nil {
			post := p.policy.PostCheck(pctx.Tenant, pctx.Capability, res.Output)
			if !post.Pass {
				p.record(traceID, trace.EventPostFallback, map[string]any{"toolId": cand.ToolID, "code": string(post.Code), "detail": post.Detail})
				if p.metrics != nil {
					p.metrics.PlannerFallbacksTotal.WithLabelValues(pctx.Capability).Inc()
				}
				return plan.ExecutionResult{}, nil, false
			}
		}
		if p.metrics != nil {
			p.metrics.PlannerSelectionTotal.WithLabelValues(pctx.Capability, cand.ToolID).Inc()
			if res.LatencyMs != nil {
				p.metrics.PlannerExecutionLatency.WithLabelValues(cand.ToolID).Observe(float64(*res.LatencyMs))
			}
		}
		p.record(traceID, trace.EventSelected, map[string]any{"toolId": cand.ToolID})
		p.record(traceID, trace.EventSuccess, map[string]any{"toolId": cand.ToolID})
		return res, &plan.Selection{ToolID: cand.ToolID}, true

	case plan.StatusTimeout:
		p.record(traceID, trace.EventTimeout, map[string]any{"toolId": cand.ToolID, "error": res.Error})
		return res, nil, true

	default: // plan.StatusFailure
		p.record(traceID, trace.EventFallback, map[string]any{"toolId": cand.ToolID, "error": res.Error})
		if p.metrics != nil {
			p.metrics.PlannerFallbacksTotal.WithLabelValues(pctx.Capability).Inc()
		}
		return plan.ExecutionResult{}, nil, false
	}
}

func (p *Planner) record(traceID string, eventType trace.EventType, data map[string]any) {
	p.traces.Record(traceID, eventType, data)
	if p.metrics != nil {
		p.metrics.TraceEventsTotal.Inc()
	}
}

// filterByCapability keeps tools declaring the requested capability.
func filterByCapability(tools []registry.Tool, capability string) []registry.Tool {
	out := make([]registry.Tool, 0, len(tools))
	for _, t := range tools {
		if t.HasCapability(capability) {
			out = append(out, t)
		}
	}
	return out
}

// filterByPreconditions rejects tools requiring network when the process is
// offline, and tools whose required environment variables are not set.
// Environment is read once per decision, not cached across decisions.
func filterByPreconditions(tools []registry.Tool) []registry.Tool {
	_, offline := os.LookupEnv(offlineEnvVar)
	out := make([]registry.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Preconditions == nil {
			out = append(out, t)
			continue
		}
		if t.Preconditions.RequiresNetwork && offline {
			continue
		}
		if !envSatisfied(t.Preconditions.Env) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func envSatisfied(required []string) bool {
	for _, name := range required {
		if _, ok := os.LookupEnv(name); !ok {
			return false
		}
	}
	return true
}
