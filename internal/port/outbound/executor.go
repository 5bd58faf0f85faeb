// Package outbound declares the ports the planner depends on but does not
// implement: the outbound tool executor and the registry read interface.
package outbound

import (
	"context"

	"caprouter/internal/domain/plan"
	"caprouter/internal/domain/registry"
)

// Executor performs an outbound tool call under a composed abort signal. It
// owns the concrete transport (HTTP, RPA, ...) and must not throw for
// protocol-level errors — every outcome is expressed through
// plan.ExecutionResult. overallAbort carries the fan-in of the per-tool
// endpoint timeout and the planner's overall deadline; the executor must
// honor cancellation from either source promptly.
type Executor interface {
	Execute(ctx context.Context, tool registry.Tool, input map[string]any) (plan.ExecutionResult, error)
}
