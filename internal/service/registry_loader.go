// Package service wires the core's domain packages into the planner,
// registry, and policy services the CLI constructs.
package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"caprouter/internal/adapter/outbound/metrics"
	"caprouter/internal/domain/registry"
)

// RegistryLoader aggregates tool documents from a directory into an
// immutable snapshot, publishing it by atomic pointer swap so readers never
// observe a partially rebuilt registry, and rebuilding the whole snapshot on
// any filesystem event via a stopChan/sync.Once-guarded background
// goroutine.
type RegistryLoader struct {
	dir     string
	snap    atomic.Pointer[registry.Snapshot]
	metrics *metrics.Metrics
	logger  *slog.Logger

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewRegistryLoader constructs a loader over dir. Load must be called once
// before the loader is used; Watch optionally starts hot reload.
func NewRegistryLoader(dir string, m *metrics.Metrics, logger *slog.Logger) *RegistryLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryLoader{
		dir:      dir,
		metrics:  m,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Load performs the initial synchronous aggregate-and-publish.
func (l *RegistryLoader) Load() error {
	return l.rebuild()
}

// List returns the tools in the currently published snapshot.
func (l *RegistryLoader) List() []registry.Tool {
	s := l.snap.Load()
	if s == nil {
		return nil
	}
	return s.List()
}

// GetRegistry returns the currently published snapshot.
func (l *RegistryLoader) GetRegistry() (*registry.Snapshot, error) {
	s := l.snap.Load()
	if s == nil {
		return nil, fmt.Errorf("registry not loaded")
	}
	return s, nil
}

// Watch starts a background goroutine that rebuilds the snapshot on any
// directory event. Stop must be called to release the watcher.
func (l *RegistryLoader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}
	l.watcher = w

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.stopChan:
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				if err := l.rebuild(); err != nil {
					l.logger.Error("registry rebuild failed", "error", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Error("registry watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Stop releases the watcher and waits for the background goroutine to exit.
// Safe to call multiple times.
func (l *RegistryLoader) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
		if l.watcher != nil {
			_ = l.watcher.Close()
		}
	})
	l.wg.Wait()
}

// rebuild loads every document in dir, validates them as a unit, and
// atomically publishes the resulting snapshot. On any validation failure the
// whole rebuild is discarded and the previous snapshot is kept.
func (l *RegistryLoader) rebuild() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		l.countError()
		return fmt.Errorf("read registry dir: %w", err)
	}

	var tools []registry.Tool
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			l.countError()
			return fmt.Errorf("read %s: %w", path, err)
		}
		jsonBytes, err := toJSON(ext, raw)
		if err != nil {
			l.countError()
			return fmt.Errorf("parse %s: %w", path, err)
		}
		fileTools, err := parseDocument(jsonBytes)
		if err != nil {
			l.countError()
			return fmt.Errorf("validate %s: %w", path, err)
		}
		tools = append(tools, fileTools...)
	}

	snap := &registry.Snapshot{Tools: tools, UpdatedAt: time.Now()}
	l.snap.Store(snap)
	if l.metrics != nil {
		l.metrics.ToolsLoaded.Set(float64(len(tools)))
	}
	l.logger.Info("registry snapshot published", "tools", len(tools))
	return nil
}

func (l *RegistryLoader) countError() {
	if l.metrics != nil {
		l.metrics.ToolLoadErrors.Inc()
	}
}

// toJSON normalizes YAML and JSON source bytes to JSON, since the schema
// validator operates on JSON Schema against decoded JSON. yaml.v3 decodes
// mapping nodes with string keys into map[string]interface{}, which
// encoding/json already marshals correctly.
func toJSON(ext string, raw []byte) ([]byte, error) {
	if ext == ".json" {
		return raw, nil
	}
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// parseDocument validates raw as either a registry document (multiple
// tools) or a single tool document, accepting whichever shape matches.
func parseDocument(raw []byte) ([]registry.Tool, error) {
	if doc, err := registry.ValidateRegistryDocument(raw); err == nil {
		return doc.Tools, nil
	}
	tool, err := registry.ValidateToolDocument(raw)
	if err != nil {
		return nil, err
	}
	return []registry.Tool{*tool}, nil
}

// The compile-time outbound.RegistryService assertion is made on
// RegistryService in registry_service.go.
