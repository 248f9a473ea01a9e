package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a single config file. The parent directory is
// watched rather than the file, so editors that save by rename are seen too.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	changes chan struct{}
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Watch starts watching path. Bursts of events are coalesced: Changes holds
// at most one pending notification.
func Watch(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		watcher: fsw,
		path:    abs,
		changes: make(chan struct{}, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Changes fires after the file was written, created, or renamed into place.
func (w *Watcher) Changes() <-chan struct{} { return w.changes }

// Errors carries watcher failures. Dropped when nobody is reading.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}
