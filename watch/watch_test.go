package watch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newWatcher(t *testing.T, opts ...Option) *Watcher {
	t.Helper()
	w, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func waitEvent(t *testing.T, w *Watcher, timeout time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		return ev, ok
	case <-time.After(timeout):
		return Event{}, false
	}
}

func TestTrackMissingParentDir(t *testing.T) {
	w := newWatcher(t)
	err := w.Track(filepath.Join(t.TempDir(), "nope", "settings.toml"))
	if err == nil {
		t.Fatal("Track() succeeded with missing parent directory")
	}
	var we *WatchError
	if !errors.As(err, &we) {
		t.Errorf("error type %T, want *WatchError", err)
	}
}

func TestEventOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")

	w := newWatcher(t, WithDebounce(20*time.Millisecond))
	if err := w.Track(path); err != nil {
		t.Fatalf("Track() error: %v", err)
	}

	if err := os.WriteFile(path, []byte("a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev, ok := waitEvent(t, w, 2*time.Second)
	if !ok {
		t.Fatal("no event delivered")
	}
	if ev.Path != path {
		t.Errorf("event path = %q, want %q", ev.Path, path)
	}
}

func TestEventFileMayNotExistYet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "later.toml")

	w := newWatcher(t, WithDebounce(20*time.Millisecond))
	if err := w.Track(path); err != nil {
		t.Fatalf("Track() error: %v", err)
	}

	if err := os.WriteFile(path, []byte("a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := waitEvent(t, w, 2*time.Second); !ok {
		t.Fatal("no event for newly created file")
	}
}

func TestAtomicRenameDelivers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	if err := os.WriteFile(path, []byte("a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(t, WithDebounce(20*time.Millisecond))
	if err := w.Track(path); err != nil {
		t.Fatalf("Track() error: %v", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("a = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	if _, ok := waitEvent(t, w, 2*time.Second); !ok {
		t.Fatal("no event after atomic rename")
	}
}

func TestDebounceCoalesces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")

	w := newWatcher(t, WithDebounce(150*time.Millisecond))
	if err := w.Track(path); err != nil {
		t.Fatalf("Track() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("a = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := waitEvent(t, w, 2*time.Second); !ok {
		t.Fatal("no event delivered")
	}
	if ev, ok := waitEvent(t, w, 400*time.Millisecond); ok {
		t.Errorf("burst produced a second event: %+v", ev)
	}
}

func TestUntrackStopsDelivery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")

	w := newWatcher(t, WithDebounce(20*time.Millisecond))
	if err := w.Track(path); err != nil {
		t.Fatalf("Track() error: %v", err)
	}
	if err := w.Untrack(path); err != nil {
		t.Fatalf("Untrack() error: %v", err)
	}

	if err := os.WriteFile(path, []byte("a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ev, ok := waitEvent(t, w, 300*time.Millisecond); ok {
		t.Errorf("untracked file delivered event: %+v", ev)
	}
}

func TestUntrackUnknownIsNoOp(t *testing.T) {
	w := newWatcher(t)
	if err := w.Untrack(filepath.Join(t.TempDir(), "never.toml")); err != nil {
		t.Errorf("Untrack() error: %v", err)
	}
}

func TestCloseClosesChannels(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("event channel open after Close")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := w.Track("x"); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Track() after Close = %v, want ErrWatcherClosed", err)
	}
	if err := w.Untrack("x"); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Untrack() after Close = %v, want ErrWatcherClosed", err)
	}
}
