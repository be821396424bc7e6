// Package fsnotify implements the ports.Watcher interface using github.com/fsnotify/fsnotify.
// It watches the parent directory of a single target file, because editors and
// deploy tools often replace a file by renaming a new one over it, which drops
// a watch placed on the file itself. Events for other files are filtered out
// and rapid bursts are debounced.
package fsnotify

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/corey/linecheck/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the several events a single save usually produces.
const DefaultDebounce = 50 * time.Millisecond

// Watcher implements ports.Watcher using fsnotify.
type Watcher struct {
	fw       *fsnotify.Watcher
	log      *slog.Logger
	debounce time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	stopped  bool
	mu       sync.Mutex
}

// NewWatcher creates a new file system watcher. A debounce <= 0 uses
// DefaultDebounce.
func NewWatcher(debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fw:       fw,
		log:      logging.OrDiscard(logger),
		debounce: debounce,
		done:     make(chan struct{}),
	}, nil
}

// Watch starts monitoring filePath. onChange is called with the absolute
// path of the file after a burst of write/create/remove/rename events has
// been quiet for the debounce interval.
func (w *Watcher) Watch(filePath string, onChange func(filePath string)) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return err
	}
	if err := w.fw.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	w.wg.Add(1)
	go w.loop(absPath, onChange)
	return nil
}

func (w *Watcher) loop(absPath string, onChange func(string)) {
	defer w.wg.Done()

	// Trailing-edge debounce: the timer restarts on every relevant event
	// and fires once the burst is over.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.log.Debug("target event", "path", absPath, "op", event.Op.String())
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			onChange(absPath)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// fsnotify recovers on its own; keep watching.
			w.log.Warn("watcher error", "err", err)

		case <-w.done:
			return
		}
	}
}

// Stop ends monitoring and releases all resources. After Stop returns no
// further onChange calls fire. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)
	err := w.fw.Close()
	w.wg.Wait()
	return err
}
