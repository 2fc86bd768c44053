package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestIsRegistrationFile(t *testing.T) {
	if !IsRegistrationFile("/d/x.lsm.registration.to_3") {
		t.Fatalf("expected registration file")
	}
	if IsRegistrationFile("/d/x.lsm") {
		t.Fatalf("unexpected registration file")
	}
}

func TestConvertSkipsChmodAndOtherFiles(t *testing.T) {
	if _, ok := convert(fsnotify.Event{Name: "a.registration", Op: fsnotify.Chmod}); ok {
		t.Fatalf("chmod should be ignored")
	}
	if _, ok := convert(fsnotify.Event{Name: "a.tif", Op: fsnotify.Create}); ok {
		t.Fatalf("non-registration files should be ignored")
	}
	e, ok := convert(fsnotify.Event{Name: "/d/a.registration", Op: fsnotify.Remove})
	if !ok || e.Operation != "deleted" || e.Name != "a.registration" {
		t.Fatalf("unexpected event %+v ok=%v", e, ok)
	}
}

func TestRunReportsDebouncedChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan []Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(evs []Event) { got <- evs })
	}()

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "v.registration"), []byte("z-scaling: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case evs := <-got:
		if len(evs) == 0 {
			t.Fatalf("expected at least one event")
		}
		for _, e := range evs {
			if e.Name != "v.registration" {
				t.Fatalf("unexpected event for %s", e.Name)
			}
		}
	case <-ctx.Done():
		t.Fatalf("no change reported")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
