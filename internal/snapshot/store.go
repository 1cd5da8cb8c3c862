// Package snapshot persists router models to disk and reloads them when
// another process replaces the file.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
	"go.uber.org/zap"
)

var (
	// ErrSnapshotNotFound indicates no snapshot file exists yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrEmptyPath indicates the store was created without a path.
	ErrEmptyPath = errors.New("snapshot path is required")
)

// FileStore reads and writes a router model as JSON at a fixed path.
// It implements router.Snapshotter.
type FileStore struct {
	path   string
	logger *zap.Logger

	// mu serializes Save.
	mu sync.Mutex
	// lastSavedAt is the export time of the most recently written model.
	lastSavedAt time.Time

	// lastWritten is the content hash of the most recent Save.
	lastWritten atomic.Uint64
}

// NewFileStore creates a store for path. logger may be nil.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: filepath.Clean(path), logger: logger}, nil
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes m atomically: a uniquely named temp file with 0600
// permissions is renamed over the target. Saves are serialized, and a model
// exported before the last one written is skipped so an older export never
// replaces a newer one.
func (s *FileStore) Save(ctx context.Context, m *router.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Metadata.SavedAt.Before(s.lastSavedAt) {
		s.logger.Debug("skipping stale snapshot",
			zap.String("snapshot_id", m.Metadata.SnapshotID),
			zap.Time("saved_at", m.Metadata.SavedAt),
			zap.Time("last_saved_at", s.lastSavedAt),
		)
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := writeTemp(dir, filepath.Base(s.path)+".*.tmp", data)
	if err != nil {
		return err
	}
	s.lastWritten.Store(xxhash.Sum64(data))
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	s.lastSavedAt = m.Metadata.SavedAt

	s.logger.Debug("snapshot saved",
		zap.String("path", s.path),
		zap.String("snapshot_id", m.Metadata.SnapshotID),
		zap.Int("states", len(m.QTable)),
	)
	return nil
}

// writeTemp writes data to a new file in dir named after pattern and
// returns its path. CreateTemp opens the file with 0600.
func writeTemp(dir, pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("closing temp snapshot: %w", err)
	}
	return name, nil
}

// Load reads the model at the store's path. Structural validation is left
// to router.Import; undecodable files yield a *router.ModelFormatError.
func (s *FileStore) Load(ctx context.Context) (*router.Model, error) {
	m, _, err := s.load(ctx)
	return m, err
}

func (s *FileStore) load(ctx context.Context) (*router.Model, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrSnapshotNotFound, s.path)
		}
		return nil, 0, fmt.Errorf("reading snapshot: %w", err)
	}

	var m router.Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, 0, &router.ModelFormatError{Reason: fmt.Sprintf("decoding JSON: %v", err)}
	}
	return &m, xxhash.Sum64(data), nil
}

// Restore loads the snapshot into r. A missing snapshot is not an error;
// found reports whether one was imported.
func (s *FileStore) Restore(ctx context.Context, r Importer) (found bool, err error) {
	m, err := s.Load(ctx)
	if errors.Is(err, ErrSnapshotNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := r.Import(m); err != nil {
		return false, fmt.Errorf("importing snapshot %s: %w", s.path, err)
	}
	return true, nil
}

// Importer receives reloaded models.
type Importer interface {
	Import(m *router.Model) error
}
