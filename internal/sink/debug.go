package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/scrapeloop/fkreviews/internal/logger"
)

// DebugStore persists raw bodies captured on failure signatures for offline
// inspection. It is diagnostic only; nothing reads the blobs back.
type DebugStore struct {
	dir string
}

// NewDebugStore creates a store rooted at dir. An empty dir disables storage.
func NewDebugStore(dir string) (*DebugStore, error) {
	if dir == "" {
		return &DebugStore{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	return &DebugStore{dir: dir}, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Put writes blob under a descriptive key. Failures are logged, never
// propagated; debugging must not break the pipeline.
func (d *DebugStore) Put(key string, blob []byte) {
	if d.dir == "" {
		return
	}
	name := unsafeKeyChars.ReplaceAllString(key, "-")
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		logger.Warn("failed to store debug blob", "key", key, "error", err)
		return
	}
	logger.Debug("stored debug blob", "path", path, "size", len(blob))
}
