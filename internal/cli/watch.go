package cli

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/matzehuels/pumlbook/pkg/errors"
)

// debounceDelay groups the bursts of events editors produce on save.
const debounceDelay = 100 * time.Millisecond

// watchedExts are the file types whose changes trigger a re-render.
var watchedExts = map[string]bool{
	".md":       true,
	".puml":     true,
	".iuml":     true,
	".plantuml": true,
	".pu":       true,
}

// watcher calls a function after markdown or diagram sources under a
// directory tree change.
type watcher struct {
	fs     *fsnotify.Watcher
	ignore string
	delay  time.Duration
}

// newWatcher watches root and its subdirectories, skipping hidden ones such
// as the artifact cache. Changes to ignore, typically the output file, are
// not reported.
func newWatcher(root, ignore string) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create file watcher")
	}
	w := &watcher{fs: fw, ignore: ignore, delay: debounceDelay}
	if err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "watch %s", path)
		}
		return nil
	})
}

// addFiles watches the directories holding files, such as diagrams pulled
// in from outside the watched tree. Directories already watched are skipped.
func (w *watcher) addFiles(files []string) error {
	watched := make(map[string]bool)
	for _, p := range w.fs.WatchList() {
		watched[p] = true
	}
	for _, f := range files {
		dir := filepath.Dir(f)
		if watched[dir] {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "watch %s", dir)
		}
		watched[dir] = true
	}
	return nil
}

// relevant reports whether an event should trigger fn.
func (w *watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if w.ignore != "" && filepath.Clean(ev.Name) == w.ignore {
		return false
	}
	return watchedExts[strings.ToLower(filepath.Ext(ev.Name))]
}

// Run calls fn once per burst of relevant changes until ctx is done.
func (w *watcher) Run(ctx context.Context, fn func(context.Context)) error {
	logger := loggerFromContext(ctx)

	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						logger.Warn("cannot watch directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if w.relevant(ev) {
				logger.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
				timer.Reset(w.delay)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			fn(ctx)
		}
	}
}

// Close stops watching.
func (w *watcher) Close() error {
	return w.fs.Close()
}
