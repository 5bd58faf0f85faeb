package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Server.MetricsAddr != "127.0.0.1:9090" {
		t.Errorf("MetricsAddr = %q, want %q", cfg.Server.MetricsAddr, "127.0.0.1:9090")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Trace.MaxTraces != 1000 {
		t.Errorf("Trace.MaxTraces = %d, want 1000", cfg.Trace.MaxTraces)
	}
	if cfg.Trace.TTL != "15m" {
		t.Errorf("Trace.TTL = %q, want %q", cfg.Trace.TTL, "15m")
	}
	if cfg.Planner.DefaultTimeoutMs != 5000 {
		t.Errorf("Planner.DefaultTimeoutMs = %d, want 5000", cfg.Planner.DefaultTimeoutMs)
	}
	wantWeights := ScoringWeightsConfig{Fit: 0.45, SLA: 0.25, Reward: 0.15, Cost: 0.15}
	if cfg.Planner.Weights != wantWeights {
		t.Errorf("Planner.Weights = %+v, want %+v", cfg.Planner.Weights, wantWeights)
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{HTTPAddr: ":9090"},
		Trace:  TraceConfig{MaxTraces: 50, TTL: "1h"},
		Planner: PlannerConfig{
			DefaultTimeoutMs: 2000,
			Weights:          ScoringWeightsConfig{Fit: 1, SLA: 0, Reward: 0, Cost: 0},
		},
	}

	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr was overwritten: got %q, want %q", cfg.Server.HTTPAddr, ":9090")
	}
	if cfg.Trace.MaxTraces != 50 {
		t.Errorf("Trace.MaxTraces was overwritten: got %d, want 50", cfg.Trace.MaxTraces)
	}
	if cfg.Trace.TTL != "1h" {
		t.Errorf("Trace.TTL was overwritten: got %q, want %q", cfg.Trace.TTL, "1h")
	}
	if cfg.Planner.DefaultTimeoutMs != 2000 {
		t.Errorf("Planner.DefaultTimeoutMs was overwritten: got %d, want 2000", cfg.Planner.DefaultTimeoutMs)
	}
	wantWeights := ScoringWeightsConfig{Fit: 1, SLA: 0, Reward: 0, Cost: 0}
	if cfg.Planner.Weights != wantWeights {
		t.Errorf("Planner.Weights was overwritten: got %+v, want %+v", cfg.Planner.Weights, wantWeights)
	}
}

func TestConfig_SetDevDefaults_NoOpWhenNotDevMode(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "" {
		t.Errorf("LogLevel = %q, want empty (dev defaults should not apply)", cfg.Server.LogLevel)
	}
}

func TestConfig_SetDevDefaults_OverridesLogLevel(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "debug")
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "caprouter.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "caprouter.yml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "caprouter" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "caprouter"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "caprouter.yaml")
	ymlPath := filepath.Join(dir, "caprouter.yml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  http_addr: :8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
