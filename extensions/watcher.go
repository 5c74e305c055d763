package extensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reports extensions that appear under dir after the call. Filesystem
// events are debounced per extension directory so a directory being copied
// in settles before it is probed; directories that are not loadable when
// probed are retried on their next event. The channel closes when ctx is
// cancelled or the watcher fails. Sends never block; if the receiver falls
// behind, notifications are dropped.
func (l *Loader) Watch(ctx context.Context, dir string) (<-chan Extension, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	events := make(chan Extension, 8)

	go func() {
		defer watcher.Close()
		defer close(events)

		pending := make(map[string]struct{})
		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				extDir, ok := candidateDir(dir, ev.Name)
				if !ok {
					continue
				}
				if ev.Name == extDir && ev.Op&fsnotify.Create != 0 {
					// Watch inside the new directory so the manifest write
					// retriggers the probe.
					if info, err := os.Stat(extDir); err == nil && info.IsDir() {
						_ = watcher.Add(extDir)
					}
				}
				pending[extDir] = struct{}{}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(l.debounce)

			case <-timer.C:
				dirs := make([]string, 0, len(pending))
				for extDir := range pending {
					dirs = append(dirs, extDir)
					delete(pending, extDir)
				}
				sort.Strings(dirs)

				for _, extDir := range dirs {
					ext, err := l.load(extDir)
					if err != nil || ext == nil {
						// Not loadable yet, or filtered; a later write
						// retriggers the probe.
						l.logger.Debug("extension not loadable", "dir", extDir, "error", err)
						continue
					}
					select {
					case events <- *ext:
					default:
						l.logger.Warn("dropping extension notification", "name", ext.Name)
					}
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return events, nil
}

// candidateDir maps a filesystem event path to the extension directory that
// owns it: the first path element under root.
func candidateDir(root, name string) (string, bool) {
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return filepath.Join(root, first), true
}
