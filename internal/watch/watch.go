// Package watch re-runs batch processing when files under the input root
// change. Events are debounced so a burst of writes triggers one run.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/docflow/internal/discovery"
)

// DefaultDebounce is the quiet period required before a run fires
const DefaultDebounce = 2 * time.Second

// Watcher observes an input root and invokes a callback after changes settle
type Watcher struct {
	root      string
	recursive bool
	debounce  time.Duration
	logger    *logrus.Logger
}

// New creates a Watcher over root. Zero debounce selects the default.
func New(root string, recursive bool, debounce time.Duration, logger *logrus.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, recursive: recursive, debounce: debounce, logger: logger}
}

// Run blocks until the context is cancelled, invoking fn after each settled
// burst of filesystem events. Events for unsupported file types are ignored.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addDirs(fsw); err != nil {
		return err
	}
	w.logger.WithField("root", w.root).Info("Watching for changes")

	// The timer is armed on the first relevant event and re-armed on each
	// subsequent one; fn runs only after the burst goes quiet.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.WithFields(logrus.Fields{
				"path": event.Name,
				"op":   event.Op.String(),
			}).Debug("Change detected")
			// New directories need watching before their contents arrive
			if w.recursive && event.Op.Has(fsnotify.Create) {
				_ = w.addDirs(fsw)
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Watch error")

		case <-timer.C:
			fn(ctx)
		}
	}
}

func (w *Watcher) addDirs(fsw *fsnotify.Watcher) error {
	if !w.recursive {
		return fsw.Add(w.root)
	}
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// relevant filters events down to supported input files and new directories
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	ext := filepath.Ext(event.Name)
	if ext == "" {
		// Possibly a directory; recursive watches care about those
		return w.recursive
	}
	return discovery.Supported(ext)
}
