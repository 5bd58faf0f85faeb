package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"caprouter/internal/adapter/outbound/cel"
	"caprouter/internal/adapter/outbound/executor"
	"caprouter/internal/adapter/outbound/memory"
	"caprouter/internal/adapter/outbound/metrics"
	"caprouter/internal/config"
	"caprouter/internal/domain/policy"
	"caprouter/internal/domain/registry"
	"caprouter/internal/domain/scoring"
	"caprouter/internal/service"
)

// components holds every subsystem wired from a Config, plus the pieces a
// caller needs to stop or serve them.
type components struct {
	loader   *service.RegistryLoader
	registry *service.RegistryService
	policy   policy.Service
	policySt *memory.PolicyStore // nil if no policy file configured
	traces   *memory.TraceStore
	planner  *service.Planner
}

// buildComponents wires the registry loader, policy gate, scorer, trace
// store, and planner from cfg. watch controls whether the registry and
// policy file reload on change; callers that run a single decision and exit
// (the plan command) pass false.
func buildComponents(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger, watch bool) (*components, error) {
	loader := service.NewRegistryLoader(cfg.Registry.Dir, m, logger)
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if watch && cfg.Registry.Watch {
		if err := loader.Watch(); err != nil {
			return nil, fmt.Errorf("watch registry: %w", err)
		}
	}
	registrySvc := service.NewRegistryService(loader)

	var policySvc policy.Service
	var policySt *memory.PolicyStore
	if cfg.Policy.Path != "" {
		policySt = memory.NewPolicyStore()
		if err := policySt.Load(cfg.Policy.Path); err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		if watch && cfg.Policy.Watch {
			if err := policySt.Watch(logger); err != nil {
				return nil, fmt.Errorf("watch policy: %w", err)
			}
		}
		policySvc = service.NewPolicyService(policySt)
	}

	scorerOpts := []scoring.Option{
		scoring.WithWeights(scoring.Weights{
			Fit:    cfg.Planner.Weights.Fit,
			SLA:    cfg.Planner.Weights.SLA,
			Reward: cfg.Planner.Weights.Reward,
			Cost:   cfg.Planner.Weights.Cost,
		}),
	}
	if len(cfg.Policy.RewardExpressions) > 0 {
		overrides, err := cel.NewRewardOverrides(cfg.Policy.RewardExpressions)
		if err != nil {
			return nil, fmt.Errorf("compile reward expressions: %w", err)
		}
		scorerOpts = append(scorerOpts, scoring.WithRewardFunc(tenantRewardFunc(overrides)))
	}
	scorer := scoring.NewLinearScorer(scorerOpts...)

	ttl, err := time.ParseDuration(cfg.Trace.TTL)
	if err != nil {
		return nil, fmt.Errorf("parse trace.ttl: %w", err)
	}
	traces := memory.NewTraceStore(memory.WithCapacity(cfg.Trace.MaxTraces), memory.WithTTL(ttl))

	exec := executor.NewStubExecutor(map[string][]executor.Response{})

	planner := service.NewPlanner(registrySvc, policySvc, scorer, exec, traces, m, logger)

	return &components{
		loader:   loader,
		registry: registrySvc,
		policy:   policySvc,
		policySt: policySt,
		traces:   traces,
		planner:  planner,
	}, nil
}

// stop releases every background goroutine buildComponents may have started.
func (c *components) stop() {
	c.loader.Stop()
	if c.policySt != nil {
		c.policySt.Stop()
	}
}

// tenantRewardFunc dispatches to the override compiled for ctx.Tenant,
// falling back to the scorer's own neutral default when no override was
// configured for that tenant.
func tenantRewardFunc(overrides *cel.RewardOverrides) scoring.RewardFunc {
	return func(tool registry.Tool, ctx scoring.Context) float64 {
		if f := overrides.RewardFunc(ctx.Tenant); f != nil {
			return f(tool, ctx)
		}
		return 0.5
	}
}

// newLogger builds the process logger, writing to stderr so stdout stays
// free for command output (e.g. the plan command's JSON result).
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// info for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
