package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"caprouter/internal/adapter/outbound/metrics"
	"caprouter/internal/config"
	"caprouter/internal/domain/plan"
)

var (
	planTenant     string
	planCapability string
	planInput      string
	planTimeoutMs  int
	planExecute    bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run a single decision against the configured registry",
	Long: `Run one plan() call against the configured tool registry and policy,
printing the result as JSON. Useful for smoke-testing a registry directory
without starting the HTTP server.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planTenant, "tenant", "", "tenant id")
	planCmd.Flags().StringVar(&planCapability, "capability", "", "capability to route (required)")
	planCmd.Flags().StringVar(&planInput, "input", "{}", "JSON-encoded capability input")
	planCmd.Flags().IntVar(&planTimeoutMs, "timeout-ms", 0, "overall deadline in milliseconds (0: use planner.default_timeout_ms)")
	planCmd.Flags().BoolVar(&planExecute, "execute", false, "execute the top-ranked candidate instead of just scoring")
	_ = planCmd.MarkFlagRequired("capability")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := newLogger(cfg)
	m := metrics.New(prometheus.NewRegistry())

	comps, err := buildComponents(cfg, m, logger, false)
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	defer comps.stop()

	var input map[string]any
	if err := json.Unmarshal([]byte(planInput), &input); err != nil {
		return fmt.Errorf("parse --input: %w", err)
	}

	timeoutMs := planTimeoutMs
	if timeoutMs == 0 {
		timeoutMs = cfg.Planner.DefaultTimeoutMs
	}

	result, err := comps.planner.Plan(context.Background(), plan.Context{
		Tenant:     planTenant,
		Capability: planCapability,
		Input:      input,
		TimeoutMs:  timeoutMs,
		Execute:    planExecute,
	})
	if err != nil {
		// A returned error still carries a partial Result (e.g. the trace id
		// allocated before a pre-check rejection); print both.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
