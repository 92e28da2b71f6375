package confstore

import (
	"errors"

	"github.com/emberward/confstore/value"
	"github.com/emberward/confstore/watch"
)

// ChangeFunc receives the previous and new effective snapshots for a kind
// after an on-disk change settles. Callbacks run on the store's watch
// goroutine; do not block in them.
type ChangeFunc func(kind FileKind, old, new value.Value)

// Subscription is a handle to one registered change callback.
type Subscription struct {
	id    uint64
	kind  FileKind
	fn    ChangeFunc
	store *Store
}

// Cancel removes the subscription. File tracking persists while other
// subscriptions for the same kind remain.
func (sub *Subscription) Cancel() {
	if sub == nil || sub.store == nil {
		return
	}
	sub.store.removeSub(sub)
	sub.store = nil
}

// Watch registers fn for external changes to any file layer of kind. The
// first Watch call for a kind starts tracking its layer files; rapid
// write bursts are coalesced into a single callback.
func (s *Store) Watch(kind FileKind, fn ChangeFunc) (*Subscription, error) {
	if fn == nil {
		return nil, errors.New("nil change callback")
	}
	ks, err := s.kindState(kind)
	if err != nil {
		return nil, err
	}

	if err := s.ensureWatcher(); err != nil {
		return nil, err
	}

	// Snapshot now so the first callback has a meaningful old value.
	ks.mu.Lock()
	if v, err := s.effectiveLocked(ks, kind); err == nil && !ks.hasNotified {
		ks.lastNotified = v
		ks.hasNotified = true
	}
	ks.mu.Unlock()

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil, ErrStoreClosed
	}

	if len(s.subs[kind]) == 0 {
		if err := s.trackKindLocked(kind); err != nil {
			return nil, err
		}
	}

	s.nextSubID++
	sub := &Subscription{id: s.nextSubID, kind: kind, fn: fn, store: s}
	s.subs[kind] = append(s.subs[kind], sub)
	return sub, nil
}

func (s *Store) ensureWatcher() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil || s.watchErr != nil {
		return s.watchErr
	}
	w, err := watch.New(watch.WithDebounce(s.debounce), watch.WithLogger(s.logger))
	if err != nil {
		s.watchErr = err
		return err
	}
	s.watcher = w
	s.watchWg.Add(2)
	go s.eventLoop(w)
	go s.errorLoop(w)
	return nil
}

// trackKindLocked registers every file-backed layer of kind with the
// watcher. Caller holds watchMu.
func (s *Store) trackKindLocked(kind FileKind) error {
	for _, layer := range kind.Chain() {
		if layer == LayerDefaults {
			continue
		}
		path, err := s.resolver.Resolve(kind, layer)
		if err != nil {
			return err
		}
		if err := s.watcher.Track(path); err != nil {
			return err
		}
		s.tracked[path] = append(s.tracked[path], target{kind: kind, layer: layer})
	}
	return nil
}

func (s *Store) eventLoop(w *watch.Watcher) {
	defer s.watchWg.Done()
	for ev := range w.Events() {
		s.handleFileEvent(ev.Path)
	}
}

func (s *Store) errorLoop(w *watch.Watcher) {
	defer s.watchWg.Done()
	for err := range w.Errors() {
		s.logger.Warn("config watch error", "error", err)
	}
}

func (s *Store) handleFileEvent(path string) {
	s.watchMu.Lock()
	targets := append([]target(nil), s.tracked[path]...)
	s.watchMu.Unlock()
	for _, t := range targets {
		s.reloadAndNotify(t.kind, t.layer)
	}
}

// reloadAndNotify drops the stale layer, recomputes the kind's snapshot,
// and invokes subscribers with the old and new views. A reload failure
// (for example a half-saved file) is logged without notifying; the next
// event retries.
func (s *Store) reloadAndNotify(kind FileKind, layer Layer) {
	ks, err := s.kindState(kind)
	if err != nil {
		return
	}

	ks.mu.Lock()
	delete(ks.layers, layer)
	ks.snapOK = false
	cur, err := s.effectiveLocked(ks, kind)
	if err != nil {
		ks.mu.Unlock()
		s.logger.Warn("config reload failed", "kind", kind.String(), "layer", layer.String(), "error", err)
		return
	}
	old := ks.lastNotified
	had := ks.hasNotified
	ks.lastNotified = cur
	ks.hasNotified = true
	ks.mu.Unlock()

	if had && old.Equal(cur) {
		return
	}
	if !had {
		old = value.EmptyTable()
	}

	s.watchMu.Lock()
	subs := append([]*Subscription(nil), s.subs[kind]...)
	s.watchMu.Unlock()
	for _, sub := range subs {
		sub.fn(kind, old.Clone(), cur.Clone())
	}
}

func (s *Store) removeSub(sub *Subscription) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	list := s.subs[sub.kind]
	for i, other := range list {
		if other.id == sub.id {
			s.subs[sub.kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
}
