// This file implements a file system watcher that starts a library scan
// shortly after documents are added, changed or removed.

package library

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change
// before triggering a scan.
const DefaultDebounce = 2 * time.Second

// Watcher watches the library directory tree and calls trigger once a
// burst of relevant changes has settled.
type Watcher struct {
	root     string
	trigger  func()
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	pending int
	stopped bool
	done    chan struct{}
}

// NewWatcher creates a watcher for root. A debounce of 0 uses DefaultDebounce.
func NewWatcher(root string, debounce time.Duration, trigger func()) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		trigger:  trigger,
		debounce: debounce,
		done:     make(chan struct{}),
	}
}

// Start begins watching the library directory for changes.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	// Files are watched through their parent directory.
	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}

	log.Infof("File watcher started for library: %s", w.root)
	go w.processEvents()
	return nil
}

// Stop stops watching and cancels a pending trigger.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) processEvents() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Chmod fires when files are merely opened or browsed.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	info, err := os.Stat(event.Name)
	if err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Warnf("Could not watch %s: %v", event.Name, err)
			}
			w.schedule()
		}
		return
	}

	if _, ok := Classify(event.Name); ok {
		w.schedule()
	}
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	if w.stopped || w.pending == 0 {
		w.mu.Unlock()
		return
	}
	n := w.pending
	w.pending = 0
	w.mu.Unlock()

	log.Infof("File watcher saw %d change(s), triggering a scan", n)
	w.trigger()
}
