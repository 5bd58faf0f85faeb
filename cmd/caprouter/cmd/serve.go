package cmd

import (
	"context"
	"fmt"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	inbhttp "caprouter/internal/adapter/inbound/http"
	"caprouter/internal/adapter/outbound/metrics"
	"caprouter/internal/config"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision API",
	Long: `Start the HTTP decision API.

Serves POST /v1/plan for capability decisions, GET /v1/traces/{id} to fetch
a past decision's event log, GET /health, and GET /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, relaxed registry path default)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := newLogger(cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	comps, err := buildComponents(cfg, m, logger, true)
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	defer comps.stop()

	logger.Info("caprouter serving",
		"http_addr", cfg.Server.HTTPAddr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"registry_dir", cfg.Registry.Dir,
		"tools", len(comps.registry.List()),
		"policy_loaded", comps.policy != nil,
	)

	transport := inbhttp.New(cfg.Server.HTTPAddr, comps.planner, comps.traces,
		inbhttp.WithLogger(logger),
		inbhttp.WithMetricsAddr(cfg.Server.MetricsAddr),
		inbhttp.WithRegisterer(reg),
	)

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("http transport: %w", err)
	}

	logger.Info("caprouter stopped")
	return nil
}
