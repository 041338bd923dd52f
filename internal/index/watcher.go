package index

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"rangecraft/internal/logging"
)

// Watcher re-indexes knowledge-base markdown files as they are created or
// modified, so retrieval stays current without a manual re-index pass.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	index       *Index
	dir         string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher over the given knowledge-base directory.
func NewWatcher(ix *Index, dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		index:       ix,
		dir:         dir,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Debounce rapid editor saves
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watcher stops when ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Index("Watching knowledge base: %s", w.dir)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()
	if !running {
		return
	}
	_ = w.watcher.Close()
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if w.debounced(event.Name) {
				continue
			}
			w.reindex(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryIndex).Warn("Watcher error: %v", err)
		}
	}
}

// debounced reports whether the path fired within the debounce window.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.debounceMap[path]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.debounceMap[path] = now
	return false
}

func (w *Watcher) reindex(ctx context.Context, path string) {
	entry, err := knowledgeEntry(path)
	if err != nil {
		logging.Get(logging.CategoryIndex).Warn("Re-index read failed for %s: %v", path, err)
		return
	}
	if _, err := w.index.AddWithID(ctx, entry.ID, entry.Content, entry.Metadata); err != nil {
		logging.Get(logging.CategoryIndex).Warn("Re-index failed for %s: %v", path, err)
		return
	}
	logging.IndexDebug("Re-indexed %s", filepath.Base(path))
}
