package opencode

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a storage tree and fires a callback when part files
// change, so an owner can expire its reader's cache ahead of the TTL. The
// callback runs on the watcher goroutine; synchronizing access to the
// reader is the owner's job, same as for every other reader call.
type Watcher struct {
	fw       *fsnotify.Watcher
	root     string
	onChange func()
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewWatcher starts watching root and every existing subdirectory.
// Subdirectories created later are picked up from their create events.
func NewWatcher(root string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("opencode: creating watcher: %w", err)
	}

	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("opencode: watching storage root: %w", err)
	}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			if addErr := fw.Add(path); addErr != nil {
				log.Printf("opencode: watch %s: %v", path, addErr)
			}
		}
		return nil
	})

	w := &Watcher{
		fw:       fw,
		root:     root,
		onChange: onChange,
		debounce: debounce,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher and cancels any pending callback.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("opencode: watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		// New session directories must be watched before their part files
		// start landing.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fw.Add(event.Name)
		}
	}

	if filepath.Ext(event.Name) != partExtension {
		return
	}
	if !event.Op.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
		return
	}
	w.fire()
}

// fire coalesces event bursts into a single callback per debounce window.
func (w *Watcher) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
		default:
			w.onChange()
		}
	})
}
