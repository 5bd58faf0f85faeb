// Package config provides configuration types for caprouter.
//
// It intentionally stays file- and env-based — no config service, no
// database-backed settings:
//
//   - Tool registry and policy document are plain files/directories on disk.
//   - All timeouts and durations are plain Go duration strings.
//   - No remote config source, no dynamic admin API for these settings.
package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for caprouter.
type Config struct {
	// Server configures the HTTP listener that serves decisions and metrics.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Registry configures the tool registry source directory and reload
	// behavior.
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`

	// Policy configures the tenant policy document.
	Policy PolicyFileConfig `yaml:"policy" mapstructure:"policy"`

	// Trace configures the in-memory decision trace store.
	Trace TraceConfig `yaml:"trace" mapstructure:"trace"`

	// Planner configures scoring weights and the default overall deadline.
	Planner PlannerConfig `yaml:"planner" mapstructure:"planner"`

	// DevMode enables permissive defaults and verbose logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address the decision API listens on.
	// Defaults to "127.0.0.1:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// MetricsAddr is the address the Prometheus /metrics endpoint listens on.
	// Defaults to "127.0.0.1:9090" if empty. Set equal to HTTPAddr to disable
	// the separate listener (metrics served on the main mux instead).
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// RegistryConfig configures the tool registry source.
type RegistryConfig struct {
	// Dir is the directory of tool/registry YAML or JSON documents.
	// Required.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required"`

	// Watch enables fsnotify-based hot reload of Dir. When false, the
	// registry is loaded once at startup and never refreshed.
	// Defaults to true.
	Watch bool `yaml:"watch" mapstructure:"watch"`
}

// PolicyFileConfig configures the tenant policy document.
type PolicyFileConfig struct {
	// Path is the policy document file (YAML or JSON). Optional: when
	// empty, the planner runs with no policy gate (every request passes
	// pre/post-check).
	Path string `yaml:"path" mapstructure:"path" validate:"omitempty,policy_extension"`

	// Watch enables fsnotify-based hot reload of Path.
	// Defaults to true. Ignored when Path is empty.
	Watch bool `yaml:"watch" mapstructure:"watch"`

	// RewardExpressions maps tenant id to a CEL expression overriding the
	// scorer's reward term for that tenant. Optional.
	RewardExpressions map[string]string `yaml:"reward_expressions" mapstructure:"reward_expressions"`
}

// TraceConfig configures the in-memory decision trace store.
type TraceConfig struct {
	// MaxTraces caps the number of retained traces (oldest evicted first).
	// Defaults to 1000 if 0.
	MaxTraces int `yaml:"max_traces" mapstructure:"max_traces" validate:"omitempty,min=1"`

	// TTL is how long a trace stays fetchable before it is pruned
	// (e.g. "15m"). Defaults to "15m" if empty.
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty"`
}

// PlannerConfig configures the scorer's default weights and the plan
// command's default overall deadline.
type PlannerConfig struct {
	// Weights are the linear scorer's term weights. Each defaults to the
	// built-in value (fit=0.45, sla=0.25, reward=0.15, cost=0.15) when the
	// section is omitted entirely.
	Weights ScoringWeightsConfig `yaml:"weights" mapstructure:"weights"`

	// DefaultTimeoutMs is the overall deadline the plan command applies when
	// --timeout-ms is 0. The HTTP decision API does not apply it: a request
	// without timeoutMs runs with no overall deadline.
	// Defaults to 5000 if 0.
	DefaultTimeoutMs int `yaml:"default_timeout_ms" mapstructure:"default_timeout_ms" validate:"omitempty,min=1"`
}

// ScoringWeightsConfig mirrors scoring.Weights for file/env configuration.
type ScoringWeightsConfig struct {
	Fit    float64 `yaml:"fit" mapstructure:"fit" validate:"omitempty,min=0"`
	SLA    float64 `yaml:"sla" mapstructure:"sla" validate:"omitempty,min=0"`
	Reward float64 `yaml:"reward" mapstructure:"reward" validate:"omitempty,min=0"`
	Cost   float64 `yaml:"cost" mapstructure:"cost" validate:"omitempty,min=0"`
}

// SetDevDefaults applies permissive defaults for development mode, applied
// before validation so a near-empty config file is enough to run locally.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Registry.Dir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Registry.Dir = wd + "/registry"
		}
	}
	c.Server.LogLevel = "debug"
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = "127.0.0.1:9090"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// Registry watch defaults to on. viper.IsSet distinguishes "not set"
	// (zero value) from "explicitly false".
	if !viper.IsSet("registry.watch") {
		c.Registry.Watch = true
	}

	if !viper.IsSet("policy.watch") {
		c.Policy.Watch = true
	}

	if c.Trace.MaxTraces == 0 {
		c.Trace.MaxTraces = 1000
	}
	if c.Trace.TTL == "" {
		c.Trace.TTL = "15m"
	}

	if c.Planner.DefaultTimeoutMs == 0 {
		c.Planner.DefaultTimeoutMs = 5000
	}
	if c.Planner.Weights == (ScoringWeightsConfig{}) {
		c.Planner.Weights = ScoringWeightsConfig{Fit: 0.45, SLA: 0.25, Reward: 0.15, Cost: 0.15}
	}
}
