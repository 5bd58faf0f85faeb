package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"caprouter/internal/adapter/outbound/metrics"
)

const validToolYAML = `
id: search-fast
name: Fast Search
version: "1.0"
capabilities:
  - name: patient.search
endpoint:
  type: http
  url: https://fast.example/search
  timeout_ms: 500
`

const secondToolYAML = `
id: search-slow
name: Slow Search
version: "1.0"
capabilities:
  - name: patient.search
endpoint:
  type: http
  url: https://slow.example/search
  timeout_ms: 4000
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRegistryLoader_LoadAndList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fast.yaml", validToolYAML)
	writeFile(t, dir, "slow.yaml", secondToolYAML)

	l := NewRegistryLoader(dir, nil, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tools := l.List()
	if len(tools) != 2 {
		t.Fatalf("List() len = %d, want 2", len(tools))
	}
}

func TestRegistryLoader_IgnoresNonDocumentFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fast.yaml", validToolYAML)
	writeFile(t, dir, "README.md", "not a tool document")

	l := NewRegistryLoader(dir, nil, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(l.List()) != 1 {
		t.Errorf("List() len = %d, want 1", len(l.List()))
	}
}

func TestRegistryLoader_InvalidDocumentFailsWholeRebuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fast.yaml", validToolYAML)
	writeFile(t, dir, "broken.yaml", "id: missing-required-fields\n")

	l := NewRegistryLoader(dir, nil, nil)
	err := l.Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid document")
	}
	if len(l.List()) != 0 {
		t.Errorf("List() after failed Load() = %d tools, want 0 (no prior snapshot published)", len(l.List()))
	}
}

func TestRegistryLoader_RebuildDiscardsOnFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fast.yaml", validToolYAML)

	l := NewRegistryLoader(dir, nil, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(l.List()) != 1 {
		t.Fatalf("initial List() len = %d, want 1", len(l.List()))
	}

	writeFile(t, dir, "broken.yaml", "id: missing-required-fields\n")
	if err := l.rebuild(); err == nil {
		t.Fatal("rebuild() expected error for invalid document")
	}

	if len(l.List()) != 1 {
		t.Errorf("List() after failed rebuild = %d tools, want 1 (previous snapshot kept)", len(l.List()))
	}
}

func TestRegistryLoader_JSONDocument(t *testing.T) {
	dir := t.TempDir()
	content := `{"id":"search-json","name":"JSON Search","version":"1.0","capabilities":[{"name":"patient.search"}]}`
	writeFile(t, dir, "tool.json", content)

	l := NewRegistryLoader(dir, nil, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(l.List()) != 1 {
		t.Errorf("List() len = %d, want 1", len(l.List()))
	}
}

func TestRegistryLoader_GetRegistry_BeforeLoad(t *testing.T) {
	l := NewRegistryLoader(t.TempDir(), nil, nil)
	if _, err := l.GetRegistry(); err == nil {
		t.Error("GetRegistry() before Load() expected error")
	}
}

func TestRegistryLoader_Watch_PicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fast.yaml", validToolYAML)

	l := NewRegistryLoader(dir, metrics.New(prometheus.NewRegistry()), nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer l.Stop()

	writeFile(t, dir, "slow.yaml", secondToolYAML)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(l.List()) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("registry was not reloaded within the deadline")
}

func TestRegistryLoader_Stop_SafeWithoutWatch(t *testing.T) {
	l := NewRegistryLoader(t.TempDir(), nil, nil)
	l.Stop()
	l.Stop()
}
