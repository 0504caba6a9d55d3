// Package watch implements the source file watcher: observe the
// directory containing the target path, enqueue an event for
// every modify/create touching that exact path, and serialize delivery
// through a single consumer. Grounded on
// _examples/janpfeifer-gonb/goexec/tracking.go's fsnotify.NewWatcher +
// single-goroutine Events/Errors select loop.
package watch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/knitj/knitj/knitjerr"
)

// Handler is invoked with the re-read file contents after each observed
// change. Calls are serialized: one call completes before the next
// begins.
type Handler func(text string)

// SourceWatcher watches a single file for modify/create events. fsnotify
// cannot watch a not-yet-existing file directly, and editors often
// replace a file via rename+create rather than write-in-place, so the
// watcher observes the parent directory and filters events down to the
// target path, matching the tracking.go idiom above.
type SourceWatcher struct {
	path    string
	watcher *fsnotify.Watcher
}

// New creates a SourceWatcher for path, starting its fsnotify watch on
// path's parent directory.
func New(path string) (*SourceWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, knitjerr.Wrap(knitjerr.KindKernelLifecycle, err, "resolving watched path")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating filesystem watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watching directory of %q", abs)
	}
	return &SourceWatcher{
		path:    abs,
		watcher: fw,
	}, nil
}

// Run observes filesystem events until ctx is canceled, re-reading the
// file and invoking handler (serialized, one call at a time) for every
// Write/Create event on the watched path. Events for other paths are
// ignored.
func (w *SourceWatcher) Run(ctx context.Context, handler Handler) {
	defer w.watcher.Close()
	klog.V(2).Infof("watch: watching %s", w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(w.path)
			if err != nil {
				klog.Warningf("watch: failed to re-read %s: %v", w.path, err)
				continue
			}
			handler(string(data))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			klog.Warningf("watch: fsnotify error: %v", err)
		}
	}
}
