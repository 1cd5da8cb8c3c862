package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize snapshot watcher")

// ReloadEvent reports one reload attempt.
type ReloadEvent struct {
	SnapshotID string
	Err        error
	Timestamp  time.Time
}

// Watcher re-imports the snapshot whenever another process replaces it.
// The store's own writes are recognized by content hash and skipped.
type Watcher struct {
	store   *FileStore
	target  Importer
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	events  chan ReloadEvent
	stop    chan struct{}

	lastSeen uint64
}

// NewWatcher creates a watcher that imports into target. logger may be nil.
func NewWatcher(store *FileStore, target Importer, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		store:   store,
		target:  target,
		logger:  logger,
		watcher: fw,
		events:  make(chan ReloadEvent, 10),
		stop:    make(chan struct{}),
	}, nil
}

// Start watches the snapshot's directory, since atomic renames replace
// the file itself. Events are processed in a background goroutine until
// ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.store.Path())); err != nil {
		return fmt.Errorf("watching snapshot directory: %w", err)
	}
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Events returns reload results. Events are dropped when nobody reads.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.store.Path() {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("snapshot watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	m, hash, err := w.store.load(ctx)
	if errors.Is(err, ErrSnapshotNotFound) {
		return
	}
	if err == nil {
		if hash == w.store.lastWritten.Load() || hash == w.lastSeen {
			return
		}
		w.lastSeen = hash
		err = w.target.Import(m)
	}

	ev := ReloadEvent{Err: err, Timestamp: time.Now()}
	if m != nil {
		ev.SnapshotID = m.Metadata.SnapshotID
	}
	if err != nil {
		w.logger.Warn("snapshot reload failed", zap.String("path", w.store.Path()), zap.Error(err))
	} else {
		w.logger.Info("snapshot reloaded",
			zap.String("path", w.store.Path()),
			zap.String("snapshot_id", ev.SnapshotID),
		)
	}

	select {
	case w.events <- ev:
	default:
	}
}
