package spawnmgr

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// WatchEvent reports a change to the spawn server program that marked the
// manager for restart, or an error from the underlying watcher.
type WatchEvent struct {
	Path string
	Err  error
}

// WatchCleanupFunc stops a watch and waits for it to finish. It may be
// called more than once.
type WatchCleanupFunc func() error

// Watch monitors the spawn server program for changes. Whenever the file is
// written or replaced, the manager is marked for restart (see Reload) so the
// next Spawn runs the new program. The watch never waits for a Spawn in
// progress. Rapid changes are coalesced using
// WatchDebounce. The returned channel is closed when the watch stops, either
// through the cleanup function or when ctx is done.
func (m *Manager) Watch(ctx context.Context) (<-chan WatchEvent, WatchCleanupFunc, error) {
	if err := m.lockContext(ctx); err != nil {
		return nil, nil, err
	}
	server, debounce := m.ServerCommand, m.WatchDebounce
	m.unlock()

	path, err := filepath.Abs(server)
	if err != nil {
		return nil, nil, &IOError{Op: "watch", Path: server, Err: err}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil, &IOError{Op: "watch", Path: path, Err: err}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, &SystemError{Op: "watch", Err: err}
	}

	// Watch the directory so atomic replacements (rename over the file) are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, nil, &IOError{Op: "watch", Path: filepath.Dir(path), Err: err}
	}

	ch := make(chan WatchEvent, 10)

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
		close(ch)
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	send := func(ev WatchEvent) {
		select {
		case ch <- ev:
		case <-sctx.Stopping():
		}
	}

	sctx.Go(func(sctx *stopper.Context) error {
		debouncer := time.NewTimer(debounce)
		debouncer.Stop()
		defer debouncer.Stop()

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				debouncer.Reset(debounce)

			case <-debouncer.C:
				m.requestReload()
				send(WatchEvent{Path: path})

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil {
					send(WatchEvent{Path: path, Err: err})
				}
			}
		}
		return nil
	})

	return ch, cleanup, nil
}
