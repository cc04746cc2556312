package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"filterbot/model"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceDelay = 500 * time.Millisecond

// ReloadFunc receives the filter lists read from a changed seed file.
type ReloadFunc func(ctx context.Context, records []model.FilterListRecord) error

// FilterListWatcher reloads the filter lists whenever their seed file changes.
type FilterListWatcher struct {
	path     string
	debounce time.Duration
	reload   ReloadFunc
	watcher  *fsnotify.Watcher
}

// NewFilterListWatcher starts watching the directory of path. Run must be called to process events.
func NewFilterListWatcher(path string, debounce time.Duration, reload ReloadFunc) (*FilterListWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filter list watcher: %w", err)
	}
	path = filepath.Clean(path)
	// Editors replace files on save, so the directory is watched rather than the file.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	if debounce <= 0 {
		debounce = defaultDebounceDelay
	}
	return &FilterListWatcher{path: path, debounce: debounce, reload: reload, watcher: watcher}, nil
}

// Run processes file events until ctx is done.
func (w *FilterListWatcher) Run(ctx context.Context) {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			log.Printf("[Config] Failed to close watcher: %v", err)
		}
	}()
	log.Printf("[Config] Watching %s for filter list changes", w.path)

	var debounceTimer *time.Timer
	var mu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			mu.Unlock()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				log.Println("[Config] Watcher events channel closed, stopping watcher")
				return
			}
			relevant := filepath.Clean(event.Name) == w.path &&
				(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename))
			if !relevant {
				continue
			}
			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() { w.apply(ctx) })
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				log.Println("[Config] Watcher errors channel closed, stopping watcher")
				return
			}
			log.Printf("[Config] Error watching %s: %v", w.path, err)
		}
	}
}

func (w *FilterListWatcher) apply(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	records, err := LoadFilterLists(w.path)
	if err != nil {
		log.Printf("[Config] Keeping the current filter lists: %v", err)
		return
	}
	if err := w.reload(ctx, records); err != nil {
		log.Printf("[Config] Failed to reload filter lists: %v", err)
		return
	}
	log.Printf("[Config] Reloaded %d filter lists from %s", len(records), w.path)
}
