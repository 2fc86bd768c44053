// Package watch notifies when registration files appear, change or vanish
// in a registration directory.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"spimfuse/internal/registration"
)

// Event describes one registration file change.
type Event struct {
	Name      string
	Operation string // "created", "modified", "deleted", "renamed"
	Time      time.Time
}

// Watcher monitors a single registration directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	log      *slog.Logger
}

// New creates a Watcher for dir. Bursts of events closer together than
// debounce are reported as one change.
func New(dir string, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{watcher: w, dir: dir, debounce: debounce, log: log}, nil
}

// Run calls onChange with the events collected during each debounce window
// until ctx is done. onChange runs on the caller's goroutine, one call at a
// time. The underlying watcher is closed when Run returns.
func (w *Watcher) Run(ctx context.Context, onChange func([]Event)) error {
	defer w.watcher.Close()
	w.log.Info("watching registration directory", "dir", w.dir)

	var (
		pending []Event
		timer   *time.Timer
		fire    <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			e, relevant := convert(ev)
			if !relevant {
				continue
			}
			pending = append(pending, e)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			batch := pending
			pending = nil
			fire = nil
			onChange(batch)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("registration watcher error", "error", err)
		}
	}
}

func convert(ev fsnotify.Event) (Event, bool) {
	var operation string
	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		operation = "created"
	case ev.Op&fsnotify.Write == fsnotify.Write:
		operation = "modified"
	case ev.Op&fsnotify.Remove == fsnotify.Remove:
		operation = "deleted"
	case ev.Op&fsnotify.Rename == fsnotify.Rename:
		operation = "renamed"
	default:
		return Event{}, false
	}
	if !IsRegistrationFile(ev.Name) {
		return Event{}, false
	}
	return Event{Name: filepath.Base(ev.Name), Operation: operation, Time: time.Now()}, true
}

// IsRegistrationFile reports whether path names a registration file.
func IsRegistrationFile(path string) bool {
	return strings.Contains(filepath.Base(path), registration.Marker)
}
