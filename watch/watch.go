// Package watch delivers debounced filesystem change events for tracked
// configuration files.
//
// The watcher monitors each tracked file's parent directory rather than the
// file itself, so editors and atomic-rename writers that remove and
// recreate the file are tolerated. Events within the debounce window
// coalesce into a single delivery. Delivery is at-least-once; consumers
// treat an event as a signal to re-check the file, not as a description of
// what changed.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the coalescing window applied when no option overrides
// it.
const DefaultDebounce = 100 * time.Millisecond

// ErrWatcherClosed indicates use of a watcher after Close.
var ErrWatcherClosed = errors.New("watcher closed")

// WatchError reports a notification subsystem failure. The watcher is
// considered dead for the affected path until it is tracked again.
type WatchError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *WatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("watch %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("watch: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *WatchError) Unwrap() error { return e.Err }

// Event reports that a tracked file changed.
type Event struct {
	// Path is the tracked file's path as passed to Track.
	Path string

	// Time is when the last coalesced filesystem event arrived.
	Time time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for background failures.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher monitors tracked files through their parent directories.
type Watcher struct {
	mu sync.Mutex

	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	// files maps cleaned absolute path -> path as passed to Track.
	files map[string]string

	// dirs refcounts watched parent directories.
	dirs map[string]int

	// pending holds the debounce timer per tracked path.
	pending map[string]*time.Timer

	events chan Event
	errs   chan error

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a watcher. The caller must drain Events until Close.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &WatchError{Err: err}
	}
	w := &Watcher{
		fsw:      fsw,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		files:    make(map[string]string),
		dirs:     make(map[string]int),
		pending:  make(map[string]*time.Timer),
		events:   make(chan Event, 64),
		errs:     make(chan error, 16),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Events returns the debounced event channel. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of notification failures.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Track starts watching a file. The parent directory must exist; the file
// itself may not exist yet.
func (w *Watcher) Track(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &WatchError{Path: path, Err: err}
	}
	dir := filepath.Dir(abs)
	if _, err := os.Stat(dir); err != nil {
		return &WatchError{Path: path, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.files[abs]; ok {
		return nil
	}
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return &WatchError{Path: path, Err: err}
		}
	}
	w.dirs[dir]++
	w.files[abs] = path
	return nil
}

// Untrack stops watching a file. In-flight debounced events for it are
// dropped silently.
func (w *Watcher) Untrack(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &WatchError{Path: path, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.files[abs]; !ok {
		return nil
	}
	delete(w.files, abs)
	if t, ok := w.pending[abs]; ok {
		t.Stop()
		delete(w.pending, abs)
	}
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.fsw.Remove(dir); err != nil {
			return &WatchError{Path: path, Err: err}
		}
	}
	return nil
}

// Close stops the watcher. Pending debounced events are dropped and the
// event channel is closed.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	close(w.events)
	close(w.errs)
	w.mu.Unlock()
	return err
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.forwardError(&WatchError{Err: err})
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
		return
	}
	abs := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	orig, tracked := w.files[abs]
	if !tracked {
		return
	}
	if t, ok := w.pending[abs]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[abs] = time.AfterFunc(w.debounce, func() {
		w.fire(abs, orig)
	})
}

func (w *Watcher) fire(abs, orig string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[abs]; !ok {
		return
	}
	delete(w.pending, abs)
	if w.closed {
		return
	}

	select {
	case w.events <- Event{Path: orig, Time: time.Now()}:
	default:
		// Consumer is not draining; drop rather than block delivery.
		w.logger.Warn("dropping change event", "path", orig)
	}
}

func (w *Watcher) forwardError(err error) {
	select {
	case w.errs <- err:
	case <-w.closeCh:
	default:
	}
}
