// Package executor provides a reference Executor implementation used by
// tests and the demo CLI; production deployments inject a real HTTP/RPA
// transport behind the same outbound.Executor port.
package executor

import (
	"context"
	"time"

	"caprouter/internal/domain/plan"
	"caprouter/internal/domain/registry"
	"caprouter/internal/port/outbound"
)

// Response is a scripted outcome for one tool id, consumed in order: each
// call to Execute for a given tool pops its next queued Response.
type Response struct {
	Status    plan.Status
	Output    map[string]any
	Error     string
	LatencyMs int64
	Delay     time.Duration // simulated work before returning/honoring cancellation
}

// StubExecutor returns scripted responses per tool id, honoring overallAbort
// cancellation during its simulated delay the way a real transport would
// honor it during an in-flight call.
type StubExecutor struct {
	queues map[string][]Response
}

// NewStubExecutor builds a StubExecutor with the given per-tool response
// queues.
func NewStubExecutor(queues map[string][]Response) *StubExecutor {
	return &StubExecutor{queues: queues}
}

// Execute honors ctx cancellation and otherwise returns the tool's next
// queued Response, translated into a plan.ExecutionResult. An exhausted
// queue, including any tool on an executor built with no queues (as the CLI
// wiring builds it), returns a generic STUB_EXHAUSTED failure.
func (e *StubExecutor) Execute(ctx context.Context, tool registry.Tool, _ map[string]any) (plan.ExecutionResult, error) {
	queue := e.queues[tool.ID]
	if len(queue) == 0 {
		return plan.Failure("STUB_EXHAUSTED", nil), nil
	}
	resp := queue[0]
	e.queues[tool.ID] = queue[1:]

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return plan.Timeout("context canceled", nil), nil
		case <-timer.C:
		}
	} else {
		select {
		case <-ctx.Done():
			return plan.Timeout("context canceled", nil), nil
		default:
		}
	}

	var latency *int64
	if resp.LatencyMs > 0 {
		l := resp.LatencyMs
		latency = &l
	}

	switch resp.Status {
	case plan.StatusSuccess:
		return plan.Success(resp.LatencyMs, resp.Output), nil
	case plan.StatusTimeout:
		return plan.Timeout(resp.Error, latency), nil
	default:
		return plan.Failure(resp.Error, latency), nil
	}
}

// Compile-time interface verification.
var _ outbound.Executor = (*StubExecutor)(nil)
