// Package observer turns filesystem events on the managed mount directory
// into mount/unmount notifications. A volume attaching materializes its
// mount point as a directory; detaching removes it.
package observer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler receives mount-point paths as volumes come and go.
type Handler interface {
	HandleMount(ctx context.Context, devicePath string)
	HandleUnmount(ctx context.Context, devicePath string)
}

// MountObserver watches one directory for mount points appearing and
// disappearing.
type MountObserver struct {
	dir     string
	handler Handler
	log     *zap.Logger
	watcher *fsnotify.Watcher
}

// New sets up a watcher over mountDir. Call Run to start delivering events
// and Close to release the watcher.
func New(mountDir string, handler Handler, log *zap.Logger) (*MountObserver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(mountDir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", mountDir, err)
	}
	return &MountObserver{dir: mountDir, handler: handler, log: log, watcher: w}, nil
}

// Run delivers events until ctx is cancelled or the watcher closes.
func (o *MountObserver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.watcher.Events:
			if !ok {
				return nil
			}
			o.dispatch(ctx, ev)
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return nil
			}
			o.log.Error("mount watcher", zap.Error(err))
		}
	}
}

func (o *MountObserver) dispatch(ctx context.Context, ev fsnotify.Event) {
	// Only direct children of the mount dir are mount points.
	if filepath.Dir(ev.Name) != filepath.Clean(o.dir) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create):
		o.log.Debug("mount point appeared", zap.String("path", ev.Name))
		o.handler.HandleMount(ctx, ev.Name)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		o.log.Debug("mount point vanished", zap.String("path", ev.Name))
		o.handler.HandleUnmount(ctx, ev.Name)
	}
}

// Close releases the underlying watcher.
func (o *MountObserver) Close() error {
	return o.watcher.Close()
}
