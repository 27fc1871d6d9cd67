// Package watch reruns the pipeline when source files change.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/logging"
)

// Watcher watches a set of files and calls a function once a burst of
// changes has settled.
type Watcher struct {
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	fn       func(context.Context) error
}

// New creates a Watcher over files. fn runs at most once per debounce
// window and never concurrently with itself.
func New(files []string, debounce time.Duration, fn func(context.Context) error) *Watcher {
	w := &Watcher{
		files:    make(map[string]bool),
		debounce: debounce,
		fn:       fn,
	}
	seen := make(map[string]bool)
	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = filepath.Clean(f)
		}
		w.files[abs] = true
		// Directories are watched rather than files so that editors and
		// producers replacing a file by rename are still observed.
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.Component("watch")

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return errors.Wrapf(err, "watch %s", dir)
		}
	}
	log.Info("watching sources", "dirs", w.dirs, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			log.Debug("source changed", "path", ev.Name, "op", ev.Op.String())
			pending = true
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := w.fn(ctx); err != nil {
				log.Error("triggered run failed", "error", err)
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}
