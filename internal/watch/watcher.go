package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/fixture"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// #region types

// OnChange is called once a watched root has been quiet for the debounce
// window after a fixture change. Calls are serialized on the watcher goroutine.
type OnChange func(ctx context.Context, root string)

// Stats counts watcher activity.
type Stats struct {
	Events   int
	Triggers int
	Errors   int
}

// Watcher reruns suites when files under their fixture roots change.
// fsnotify is not recursive, so every subdirectory is added individually.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	roots       []string
	onChange    OnChange
	logger      *zap.Logger
	debounceMap map[string]time.Time // root -> last relevant event
	debounceDur time.Duration
	tick        time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// #endregion types

// #region lifecycle

// New creates a watcher over roots. A zero debounce means 500ms.
func New(roots []string, debounce time.Duration, onChange OnChange, logger *zap.Logger) (*Watcher, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("watch: no roots")
	}
	if onChange == nil {
		return nil, fmt.Errorf("watch: nil callback")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		a, err := filepath.Abs(r)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch: resolve %s: %w", r, err)
		}
		abs = append(abs, filepath.Clean(a))
	}

	tick := debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}

	return &Watcher{
		watcher:     fw,
		roots:       abs,
		onChange:    onChange,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		tick:        tick,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start adds every root (recursively) and begins the event loop. It does
// not block. Starting twice is a no-op. A failed Start releases the watcher.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			w.watcher.Close()
			return err
		}
		w.logger.Info("watching fixtures", zap.String("root", root))
	}

	go w.run(ctx)
	return nil
}

// Stop ends the event loop, waits for it to exit and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("close watcher", zap.Error(err))
	}
}

// Done is closed when the event loop exits, by Stop or by ctx cancellation.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// #endregion lifecycle

// #region loop

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processDebounced(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	root := w.rootOf(event.Name)
	if root == "" {
		return
	}

	relevant := fixture.IsFixtureFile(event.Name)
	if event.Has(fsnotify.Create) {
		// New directories must be added; files copied in before the add are
		// picked up by the walk.
		if found, err := w.addNewDir(event.Name); err != nil {
			w.logger.Warn("watch new directory", zap.String("dir", event.Name), zap.Error(err))
		} else if found {
			relevant = true
		}
	}
	if !relevant {
		return
	}

	w.logger.Debug("fixture changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	w.mu.Lock()
	w.stats.Events++
	w.debounceMap[root] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for root, last := range w.debounceMap {
		if now.Sub(last) >= w.debounceDur {
			settled = append(settled, root)
			delete(w.debounceMap, root)
		}
	}
	w.stats.Triggers += len(settled)
	w.mu.Unlock()

	sort.Strings(settled)
	for _, root := range settled {
		w.logger.Info("fixtures settled, rerunning", zap.String("root", root))
		w.onChange(ctx, root)
	}
}

// #endregion loop

// #region paths

// rootOf returns the deepest watched root containing path, or "".
func (w *Watcher) rootOf(path string) string {
	best := ""
	for _, r := range w.roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			if len(r) > len(best) {
				best = r
			}
		}
	}
	return best
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// addNewDir watches path if it is a directory and reports whether it already
// holds fixture files.
func (w *Watcher) addNewDir(path string) (bool, error) {
	found := false
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(p)
		}
		if fixture.IsFixtureFile(p) {
			found = true
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		// Removed again before we looked.
		return false, nil
	}
	return found, err
}

// #endregion paths
