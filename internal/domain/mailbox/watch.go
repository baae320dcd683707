package mailbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch invokes onChange after the active file is created or modified. Bursts
// of events closer together than the debounce window produce one call. The
// directory is watched as well as the file so the first write is seen.
// Watching stops when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("mailbox: create watcher: %w", err)
	}

	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("mailbox: watch %s: %w", s.dir, err)
	}
	// The file watch is best effort; the directory watch sees every rename
	_ = watcher.Add(s.Path())

	d := &debouncer{wait: s.debounce, fn: func() {
		if ctx.Err() != nil {
			return
		}
		if s.metrics != nil {
			s.metrics.RecordMailboxEvent()
		}
		onChange()
	}}

	go s.watchLoop(ctx, watcher, d)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, d *debouncer) {
	defer watcher.Close()
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !s.relevant(event) {
				continue
			}
			s.logger.Debug("Mailbox event", zap.String("op", event.Op.String()), zap.String("path", event.Name))
			d.trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Mailbox watcher error", zap.Error(err))
		}
	}
}

func (s *Store) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != s.name {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}

// debouncer runs fn once the trigger calls stop arriving for wait
type debouncer struct {
	wait time.Duration
	fn   func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
