package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"caprouter/internal/domain/policy"
)

// PolicyStore holds the currently active policy Document behind an atomic
// pointer, publishing reloads by pointer swap the same way the registry
// loader does. It implements policy.Provider.
type PolicyStore struct {
	doc atomic.Pointer[policy.Document]

	path   string
	logger *slog.Logger

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewPolicyStore creates an empty store. Load must be called before Current
// returns a non-nil document.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{stopChan: make(chan struct{})}
}

// Current returns the active policy document, or nil if none has loaded.
func (s *PolicyStore) Current() *policy.Document {
	return s.doc.Load()
}

// Load reads and parses a policy document from path (YAML or JSON) and
// publishes it atomically. The file must declare schemaVersion "1.0".
func (s *PolicyStore) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	jsonBytes, err := toJSON(ext, raw)
	if err != nil {
		return fmt.Errorf("parse policy %s: %w", path, err)
	}

	var doc policy.Document
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return fmt.Errorf("parse policy %s: %w", path, err)
	}

	if doc.SchemaVersion != "1.0" {
		return fmt.Errorf("policy file %s: unsupported schemaVersion %q", path, doc.SchemaVersion)
	}

	s.path = path
	s.doc.Store(&doc)
	return nil
}

// Watch starts a background goroutine that watches the policy file's
// containing directory (fsnotify watches directories, not individual files,
// so editors that replace-via-rename are also caught) and reloads the policy
// on every event whose path is the policy file; other files are ignored.
// Load must have been called first. Stop releases the watcher.
func (s *PolicyStore) Watch(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.watcher = w

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stopChan:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if err := s.Load(s.path); err != nil {
					s.logger.Error("policy reload failed", "error", err)
				} else {
					s.logger.Info("policy document reloaded", "path", s.path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Error("policy watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Stop releases the watcher and waits for the background goroutine to exit.
// Safe to call multiple times, and safe to call even if Watch was never
// started.
func (s *PolicyStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
	})
	s.wg.Wait()
}

// LoadDocument publishes an already-parsed document directly; used by tests
// and by callers that assemble a Document in memory.
func (s *PolicyStore) LoadDocument(doc *policy.Document) {
	s.doc.Store(doc)
}

// toJSON normalizes YAML and JSON source bytes to JSON. Decoding YAML
// straight into policy.Document would unmarshal preSchemas/postSchemas
// (map[string]json.RawMessage) incorrectly, since yaml.v3 has no special
// handling for json.RawMessage; going through an untyped map first and
// re-marshaling to JSON lets encoding/json decode those fields correctly.
func toJSON(ext string, raw []byte) ([]byte, error) {
	switch ext {
	case ".json":
		return raw, nil
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported extension %q", ext)
	}
}

// Compile-time interface verification.
var _ policy.Provider = (*PolicyStore)(nil)
