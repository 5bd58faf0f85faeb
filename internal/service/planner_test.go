package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"

	"caprouter/internal/adapter/outbound/executor"
	"caprouter/internal/adapter/outbound/memory"
	"caprouter/internal/domain/plan"
	"caprouter/internal/domain/policy"
	"caprouter/internal/domain/registry"
	"caprouter/internal/domain/routererr"
	"caprouter/internal/domain/scoring"
)

// fakeRegistry is a fixed, in-memory outbound.RegistryService for tests.
type fakeRegistry struct{ tools []registry.Tool }

func (f fakeRegistry) List() []registry.Tool { return f.tools }
func (f fakeRegistry) GetRegistry() (*registry.Snapshot, error) {
	return &registry.Snapshot{Tools: f.tools}, nil
}

func httpTool(id string, p95ms int) registry.Tool {
	return registry.Tool{
		ID:           id,
		Name:         id,
		Version:      "1.0",
		Capabilities: []registry.Capability{{Name: "patient.search"}},
		SLA:          &registry.SLA{P95Ms: p95ms},
		Endpoint:     &registry.Endpoint{Type: registry.EndpointHTTP, URL: "https://example/" + id, TimeoutMs: 200},
	}
}

func newTestPlanner(tools []registry.Tool, pol policy.Service, queues map[string][]executor.Response) *Planner {
	reg := fakeRegistry{tools: tools}
	exec := executor.NewStubExecutor(queues)
	traces := memory.NewTraceStore()
	scorer := scoring.NewLinearScorer(scoring.WithWeights(scoring.Weights{Fit: 1, SLA: 0.5, Reward: 0, Cost: 0}))
	return NewPlanner(reg, pol, scorer, exec, traces, nil, nil)
}

func TestPlanner_Plan_SuccessOnFirstCandidate(t *testing.T) {
	tools := []registry.Tool{httpTool("fast", 100)}
	p := newTestPlanner(tools, nil, map[string][]executor.Response{
		"fast": {{Status: plan.StatusSuccess, LatencyMs: 50, Output: map[string]any{"ok": true}}},
	})

	res, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: true})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if res.Selected == nil || res.Selected.ToolID != "fast" {
		t.Fatalf("Selected = %+v, want fast", res.Selected)
	}
	if res.Execution == nil || res.Execution.Status != plan.StatusSuccess {
		t.Fatalf("Execution = %+v, want success", res.Execution)
	}
}

func TestPlanner_Plan_FallsBackOnFailure(t *testing.T) {
	tools := []registry.Tool{httpTool("fast", 100), httpTool("slow", 4000)}
	p := newTestPlanner(tools, nil, map[string][]executor.Response{
		"fast": {{Status: plan.StatusFailure, Error: "UPSTREAM_ERROR"}},
		"slow": {{Status: plan.StatusSuccess, LatencyMs: 300}},
	})

	res, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: true})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if res.Selected == nil || res.Selected.ToolID != "slow" {
		t.Fatalf("Selected = %+v, want slow (fallback from fast)", res.Selected)
	}
	if res.Candidates[0].ToolID != "fast" {
		t.Errorf("Candidates[0] = %s, want fast to rank first (better SLA)", res.Candidates[0].ToolID)
	}
}

func TestPlanner_Plan_AllCandidatesFail(t *testing.T) {
	tools := []registry.Tool{httpTool("a", 100), httpTool("b", 200)}
	p := newTestPlanner(tools, nil, map[string][]executor.Response{
		"a": {{Status: plan.StatusFailure, Error: "E1"}},
		"b": {{Status: plan.StatusFailure, Error: "E2"}},
	})

	res, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: true})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if res.Selected != nil {
		t.Errorf("Selected = %+v, want nil", res.Selected)
	}
	if res.Execution == nil || res.Execution.Status != plan.StatusFailure || res.Execution.Error != "ALL_CANDIDATES_FAILED" {
		t.Errorf("Execution = %+v, want failure ALL_CANDIDATES_FAILED", res.Execution)
	}
}

func TestPlanner_Plan_NoCandidatesForCapability(t *testing.T) {
	tools := []registry.Tool{httpTool("a", 100)}
	p := newTestPlanner(tools, nil, nil)

	res, err := p.Plan(context.Background(), plan.Context{Capability: "patient.delete", Execute: true})
	var decErr *routererr.DecisionError
	if !errors.As(err, &decErr) || decErr.Code != routererr.CodeNoCandidates {
		t.Fatalf("Plan() error = %v, want DecisionError/NO_CANDIDATES", err)
	}
	if res.TraceID == "" {
		t.Error("trace id should still be allocated on rejection")
	}
}

func TestPlanner_Plan_EmptyCapabilityRejected(t *testing.T) {
	p := newTestPlanner(nil, nil, nil)

	_, err := p.Plan(context.Background(), plan.Context{Capability: ""})
	var decErr *routererr.DecisionError
	if !errors.As(err, &decErr) || decErr.Code != routererr.CodeInputInvalid {
		t.Fatalf("Plan() error = %v, want DecisionError/INPUT_INVALID", err)
	}
}

func TestPlanner_Plan_PolicyPreCheckDenies(t *testing.T) {
	pol := denyAllPolicy{}
	tools := []registry.Tool{httpTool("a", 100)}
	p := newTestPlanner(tools, pol, nil)

	_, err := p.Plan(context.Background(), plan.Context{Tenant: "acme", Capability: "patient.search"})
	var decErr *routererr.DecisionError
	if !errors.As(err, &decErr) || decErr.Code != routererr.CodeCapabilityDenied {
		t.Fatalf("Plan() error = %v, want DecisionError/CAPABILITY_DENIED", err)
	}
}

func TestPlanner_Plan_PostCheckRejectionTriggersFallback(t *testing.T) {
	pol := postCheckRejectsPolicy{}
	tools := []registry.Tool{httpTool("bad-output", 100), httpTool("good-output", 200)}
	p := newTestPlanner(tools, pol, map[string][]executor.Response{
		"bad-output":  {{Status: plan.StatusSuccess, Output: map[string]any{}}},
		"good-output": {{Status: plan.StatusSuccess, Output: map[string]any{"results": []any{}}}},
	})

	res, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: true})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if res.Selected == nil || res.Selected.ToolID != "good-output" {
		t.Fatalf("Selected = %+v, want good-output (bad-output rejected by post-check)", res.Selected)
	}
}

func TestPlanner_Plan_PlanOnlyDoesNotExecute(t *testing.T) {
	tools := []registry.Tool{httpTool("fast", 100)}
	p := newTestPlanner(tools, nil, map[string][]executor.Response{
		"fast": {{Status: plan.StatusSuccess}},
	})

	res, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: false})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if res.Execution != nil {
		t.Errorf("Execution = %+v, want nil for plan-only", res.Execution)
	}
	if res.Selected == nil || res.Selected.ToolID != "fast" {
		t.Fatalf("Selected = %+v, want fast (top-ranked, even without executing)", res.Selected)
	}
}

func TestPlanner_Plan_OverallDeadlineExceededMidLoop(t *testing.T) {
	tools := []registry.Tool{httpTool("a", 100), httpTool("b", 100)}
	p := newTestPlanner(tools, nil, map[string][]executor.Response{
		"a": {{Status: plan.StatusFailure, Error: "E1", Delay: 30 * time.Millisecond}},
		"b": {{Status: plan.StatusSuccess}},
	})

	res, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: true, TimeoutMs: 15})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if res.Execution == nil || res.Execution.Status != plan.StatusTimeout {
		t.Fatalf("Execution = %+v, want timeout", res.Execution)
	}
}

func TestPlanner_Plan_PreconditionsFilterOfflineTools(t *testing.T) {
	online := httpTool("online", 100)
	offline := httpTool("needs-network", 100)
	offline.Preconditions = &registry.Preconditions{RequiresNetwork: true}

	t.Setenv("CAPROUTER_OFFLINE", "1")
	defer os.Unsetenv("CAPROUTER_OFFLINE")

	p := newTestPlanner([]registry.Tool{online, offline}, nil, map[string][]executor.Response{
		"online": {{Status: plan.StatusSuccess}},
	})

	res, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: true})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].ToolID != "online" {
		t.Fatalf("Candidates = %+v, want only [online]", res.Candidates)
	}
}

func TestPlanner_Plan_PreconditionsFilterMissingEnv(t *testing.T) {
	requiresEnv := httpTool("needs-env", 100)
	requiresEnv.Preconditions = &registry.Preconditions{Env: []string{"CAPROUTER_TEST_UNSET_VAR"}}

	p := newTestPlanner([]registry.Tool{requiresEnv}, nil, nil)

	_, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: true})
	var decErr *routererr.DecisionError
	if !errors.As(err, &decErr) || decErr.Code != routererr.CodeNoCandidates {
		t.Fatalf("Plan() error = %v, want NO_CANDIDATES (missing required env var)", err)
	}
}

func TestPlanner_Plan_NoLeakedGoroutinesOrTimers(t *testing.T) {
	defer goleak.VerifyNone(t)

	tools := []registry.Tool{httpTool("a", 100), httpTool("b", 100)}
	p := newTestPlanner(tools, nil, map[string][]executor.Response{
		"a": {{Status: plan.StatusFailure, Error: "E1"}},
		"b": {{Status: plan.StatusSuccess}},
	})

	for i := 0; i < 20; i++ {
		if _, err := p.Plan(context.Background(), plan.Context{Capability: "patient.search", Execute: true, TimeoutMs: 500}); err != nil {
			t.Fatalf("Plan() iteration %d error: %v", i, err)
		}
	}
}

// denyAllPolicy denies every capability at the pre-check stage.
type denyAllPolicy struct{}

func (denyAllPolicy) PreCheck(tenant, capability string, input map[string]any, now time.Time) policy.PreDecision {
	return policy.Denied(policy.CodeCapabilityDenied, "denied for test")
}
func (denyAllPolicy) PostCheck(tenant, capability string, output map[string]any) policy.PostDecision {
	return policy.Passed()
}

// postCheckRejectsPolicy allows everything pre-check but rejects any output
// missing a "results" key.
type postCheckRejectsPolicy struct{}

func (postCheckRejectsPolicy) PreCheck(tenant, capability string, input map[string]any, now time.Time) policy.PreDecision {
	return policy.Allowed()
}
func (postCheckRejectsPolicy) PostCheck(tenant, capability string, output map[string]any) policy.PostDecision {
	if _, ok := output["results"]; !ok {
		return policy.Failed(policy.CodePostConditionFailed, "missing results")
	}
	return policy.Passed()
}
