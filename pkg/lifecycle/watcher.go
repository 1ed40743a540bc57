package lifecycle

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ManifestWatcher watches the manifest file and re-runs the install phase
// when it changes, so a redeployed asset list takes effect without a restart.
type ManifestWatcher struct {
	path         string
	watcher      *fsnotify.Watcher
	reload       func(string) error
	logger       *slog.Logger
	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	debounceTime time.Duration
}

// NewManifestWatcher creates a watcher for the manifest at path. reload is
// called with the path after changes settle.
func NewManifestWatcher(path string, reload func(string) error, logger *slog.Logger) (*ManifestWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ManifestWatcher{
		path:         path,
		watcher:      watcher,
		reload:       reload,
		logger:       logger,
		stopCh:       make(chan struct{}),
		debounceTime: time.Second,
	}, nil
}

// Start begins watching. The manifest's directory is watched rather than the
// file itself because deploy tooling writes a temp file and renames it.
func (mw *ManifestWatcher) Start(ctx context.Context) error {
	mw.mu.Lock()
	if mw.running {
		mw.mu.Unlock()
		return nil
	}
	mw.running = true
	mw.mu.Unlock()

	if err := mw.watcher.Add(filepath.Dir(mw.path)); err != nil {
		mw.mu.Lock()
		mw.running = false
		mw.mu.Unlock()
		return err
	}

	mw.logger.Info("manifest watcher started", "path", mw.path)

	go mw.watchLoop(ctx)
	return nil
}

// Stop halts the watcher. Safe to call once.
func (mw *ManifestWatcher) Stop() error {
	mw.mu.Lock()
	if !mw.running {
		mw.mu.Unlock()
		return nil
	}
	mw.running = false
	mw.mu.Unlock()

	close(mw.stopCh)
	return mw.watcher.Close()
}

func (mw *ManifestWatcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(mw.path) {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}

			mw.logger.Debug("manifest changed", "event", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(mw.debounceTime, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := mw.reload(mw.path); err != nil {
				mw.logger.Error("manifest reload failed", "error", err)
			} else {
				mw.logger.Info("manifest reloaded", "path", mw.path)
			}

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.Warn("manifest watcher error", "error", err)

		case <-mw.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
