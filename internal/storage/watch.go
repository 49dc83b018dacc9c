package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/planline/planline/internal/schedule"
)

// DefaultDebounce coalesces filesystem event bursts; editors typically
// produce several writes per save.
const DefaultDebounce = 200 * time.Millisecond

// Watch streams change events for the task file until ctx is cancelled.
// Events are emitted in order; the channel closes when the watcher stops.
//
// The watcher observes the file's directory rather than the file itself:
// most editors replace the file on save, which would otherwise drop the
// watch. Each burst of writes is debounced, then the file is reloaded and
// diffed against the previously observed snapshot.
func (r *Repo) Watch(ctx context.Context, debounce time.Duration) (<-chan schedule.ChangeEvent, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	prev, err := r.FetchTasks(ctx)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan schedule.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		target := filepath.Clean(r.path)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					fire = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(debounce)
				}
			case <-fire:
				timer = nil
				fire = nil
				next, err := r.FetchTasks(ctx)
				if err != nil {
					// Mid-save truncation or malformed content: skip this
					// round, the next write will re-trigger.
					continue
				}
				for _, change := range diffTasks(prev, next) {
					select {
					case out <- change:
					case <-ctx.Done():
						return
					}
				}
				prev = next
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}
