package confstore

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/emberward/confstore/backend"
	"github.com/emberward/confstore/backend/tomldoc"
	"github.com/emberward/confstore/migrate"
	"github.com/emberward/confstore/value"
	"github.com/emberward/confstore/watch"
)

// Option configures a Store.
type Option func(*Store)

// WithBackend selects the configuration file format. The default is TOML.
func WithBackend(b backend.Backend) Option {
	return func(s *Store) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithFileSystem substitutes the storage seam. The default reads and
// writes the local disk with atomic replacement.
func WithFileSystem(fs FileSystem) Option {
	return func(s *Store) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithLogger sets the logger for background watch and reload failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDebounce sets the watcher coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithMigrations installs a migration registry. The default is empty.
func WithMigrations(r *migrate.Registry) Option {
	return func(s *Store) {
		if r != nil {
			s.migrations = r
		}
	}
}

// WithDefaults sets the built-in defaults layer for a kind. The value must
// be a table; it is the read-only base of the kind's chain.
func WithDefaults(kind FileKind, defaults value.Value) Option {
	return func(s *Store) {
		if defaults.IsTable() {
			s.defaults[kind] = defaults.Clone()
		}
	}
}

// Store owns the layered configuration documents for every file kind.
//
// Construct one store at process start and pass it to every consumer.
// Operations against the same kind are serialized with read-after-write
// consistency; different kinds are independent.
type Store struct {
	backend    backend.Backend
	resolver   Resolver
	fs         FileSystem
	migrations *migrate.Registry
	logger     *slog.Logger
	debounce   time.Duration
	defaults   map[FileKind]value.Value

	mu     sync.Mutex
	kinds  map[FileKind]*kindState
	closed bool

	watchMu   sync.Mutex
	watcher   *watch.Watcher
	watchErr  error
	tracked   map[string][]target
	subs      map[FileKind][]*Subscription
	nextSubID uint64
	watchWg   sync.WaitGroup
}

// target ties a tracked file path back to the chains it feeds. Shared
// files (the global layer feeds both the settings and world chains) carry
// multiple targets.
type target struct {
	kind  FileKind
	layer Layer
}

// kindState serializes everything for one file kind.
type kindState struct {
	mu       sync.Mutex
	layers   map[Layer]*layerState
	snapshot value.Value
	snapOK   bool

	// lastNotified is the snapshot the watch callbacks saw last.
	lastNotified value.Value
	hasNotified  bool
}

// layerState tracks one (kind, layer) document: Unloaded until first
// access, Loaded afterwards, and back to Unloaded when a watcher event or
// failed write marks it stale.
type layerState struct {
	loaded bool
	path   string
	doc    backend.Document
	root   value.Value
}

// New creates a store over the given path resolver.
func New(resolver Resolver, opts ...Option) *Store {
	s := &Store{
		backend:    tomldoc.New(),
		resolver:   resolver,
		fs:         OSFileSystem{},
		migrations: migrate.NewRegistry(),
		logger:     slog.Default(),
		debounce:   watch.DefaultDebounce,
		defaults:   make(map[FileKind]value.Value),
		kinds:      make(map[FileKind]*kindState),
		tracked:    make(map[string][]target),
		subs:       make(map[FileKind][]*Subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the store's format backend.
func (s *Store) Backend() backend.Backend { return s.backend }

// RegisterMigration adds a migration step for the kind's file class.
func (s *Store) RegisterMigration(kind FileKind, from int64, step migrate.Step) error {
	return s.migrations.Register(kind.Class(), from, step)
}

// Effective computes the merged, migrated, typed snapshot for a kind.
// It never returns a partial snapshot: a parse, schema, or read failure on
// any present layer aborts the whole call.
func Effective[T any](s *Store, kind FileKind) (T, error) {
	var out T
	v, err := s.EffectiveValue(kind)
	if err != nil {
		return out, err
	}
	if err := s.backend.Decode(v, &out); err != nil {
		return out, err
	}
	return out, nil
}

// EffectiveFromChain computes a typed snapshot over a caller-supplied
// ordered subset of the kind's layers. Used for previews and tests; the
// result is not cached.
func EffectiveFromChain[T any](s *Store, kind FileKind, chain []Layer) (T, error) {
	var out T
	v, err := s.EffectiveValueFromChain(kind, chain)
	if err != nil {
		return out, err
	}
	if err := s.backend.Decode(v, &out); err != nil {
		return out, err
	}
	return out, nil
}

// EffectiveValue computes the merged snapshot for a kind as a raw value.
func (s *Store) EffectiveValue(kind FileKind) (value.Value, error) {
	ks, err := s.kindState(kind)
	if err != nil {
		return value.Value{}, err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return s.effectiveLocked(ks, kind)
}

// EffectiveValueFromChain computes a merged snapshot over an explicit
// layer order.
func (s *Store) EffectiveValueFromChain(kind FileKind, chain []Layer) (value.Value, error) {
	ks, err := s.kindState(kind)
	if err != nil {
		return value.Value{}, err
	}
	for _, layer := range chain {
		if !kind.HasLayer(layer) {
			return value.Value{}, fmt.Errorf("%w: %s/%s", ErrLayerNotInChain, kind, layer)
		}
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return s.mergeChainLocked(ks, kind, chain)
}

// Apply loads (or creates) the layer's document, applies the operation in
// place, persists atomically, and invalidates the kind's cached snapshot.
// The operation is all-or-nothing: on error the file is byte-identical to
// before the call.
func (s *Store) Apply(kind FileKind, layer Layer, op backend.Op) error {
	ks, err := s.kindState(kind)
	if err != nil {
		return err
	}
	if layer == LayerDefaults {
		return fmt.Errorf("%w: %s", ErrReadOnlyLayer, layer)
	}
	if !kind.HasLayer(layer) {
		return fmt.Errorf("%w: %s/%s", ErrLayerNotInChain, kind, layer)
	}

	ks.mu.Lock()
	ls, err := s.loadLayerLocked(ks, kind, layer)
	if err != nil {
		ks.mu.Unlock()
		return err
	}
	if ls.doc == nil {
		ls.doc = s.backend.NewDocument()
	}
	if err := ls.doc.Apply(op); err != nil {
		ks.mu.Unlock()
		return err
	}
	if err := s.persist(ls.path, ls.doc); err != nil {
		// Memory and disk may now disagree; reload on next access.
		ls.loaded = false
		ls.doc = nil
		ks.snapOK = false
		ks.mu.Unlock()
		return err
	}
	ls.root = ls.doc.Root()
	ks.snapOK = false
	path := ls.path
	ks.mu.Unlock()

	s.invalidateShared(kind, path)
	return nil
}

// invalidateShared drops cached state in every other kind whose chain
// reads the just-written file. The global layer feeds both the settings
// and world chains, so a write through one must not leave the other's
// snapshot stale.
func (s *Store) invalidateShared(written FileKind, path string) {
	s.mu.Lock()
	others := make(map[FileKind]*kindState, len(s.kinds))
	for k, ks := range s.kinds {
		if k != written {
			others[k] = ks
		}
	}
	s.mu.Unlock()

	for k, ks := range others {
		for _, layer := range k.Chain() {
			if layer == LayerDefaults {
				continue
			}
			p, err := s.resolver.Resolve(k, layer)
			if err != nil || p != path {
				continue
			}
			ks.mu.Lock()
			delete(ks.layers, layer)
			ks.snapOK = false
			ks.mu.Unlock()
		}
	}
}

// Set writes a value at a dotted key path in one layer's document.
func (s *Store) Set(kind FileKind, layer Layer, path string, v value.Value) error {
	return s.Apply(kind, layer, backend.Set(path, v))
}

// Remove deletes the entry at a dotted key path in one layer's document.
func (s *Store) Remove(kind FileKind, layer Layer, path string) error {
	return s.Apply(kind, layer, backend.RemoveKey(path))
}

// Close tears down the watcher. In-flight debounced events are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.watchMu.Lock()
	w := s.watcher
	s.watcher = nil
	s.watchMu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	s.watchWg.Wait()
	return err
}

// --- internals ---

func (s *Store) kindState(kind FileKind) (*kindState, error) {
	if kind.Chain() == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ks := s.kinds[kind]
	if ks == nil {
		ks = &kindState{layers: make(map[Layer]*layerState)}
		s.kinds[kind] = ks
	}
	return ks, nil
}

func (s *Store) effectiveLocked(ks *kindState, kind FileKind) (value.Value, error) {
	if ks.snapOK {
		return ks.snapshot.Clone(), nil
	}
	v, err := s.mergeChainLocked(ks, kind, kind.Chain())
	if err != nil {
		return value.Value{}, err
	}
	ks.snapshot = v
	ks.snapOK = true
	return v.Clone(), nil
}

func (s *Store) mergeChainLocked(ks *kindState, kind FileKind, chain []Layer) (value.Value, error) {
	merged := value.EmptyTable()
	for _, layer := range chain {
		ls, err := s.loadLayerLocked(ks, kind, layer)
		if err != nil {
			return value.Value{}, err
		}
		merged = value.DeepMerge(merged, ls.root)
	}
	// The version marker is migration plumbing, not configuration.
	delete(merged.Fields(), backend.VersionKey)
	return merged, nil
}

func (s *Store) loadLayerLocked(ks *kindState, kind FileKind, layer Layer) (*layerState, error) {
	if ls, ok := ks.layers[layer]; ok && ls.loaded {
		return ls, nil
	}
	ls := &layerState{}

	if layer == LayerDefaults {
		if d, ok := s.defaults[kind]; ok {
			ls.root = d.Clone()
		} else {
			ls.root = value.EmptyTable()
		}
		ls.loaded = true
		ks.layers[layer] = ls
		return ls, nil
	}

	path, err := s.resolver.Resolve(kind, layer)
	if err != nil {
		return nil, err
	}
	ls.path = path

	data, err := s.fs.ReadFile(path)
	switch {
	case err == nil:
		doc, err := s.backend.Parse(data)
		if err != nil {
			var pe *backend.ParseError
			if errors.As(err, &pe) && pe.Path == "" {
				pe.Path = path
			}
			return nil, err
		}
		if class, hasClass := layer.Class(); hasClass {
			if _, err := s.migrations.Apply(class, doc, func(d backend.Document) error {
				return s.persist(path, d)
			}); err != nil {
				return nil, err
			}
		}
		ls.doc = doc
		ls.root = doc.Root()

	case errors.Is(err, iofs.ErrNotExist):
		// Missing layer files are empty tables, never errors.
		ls.root = value.EmptyTable()

	default:
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	ls.loaded = true
	ks.layers[layer] = ls
	return ls, nil
}

func (s *Store) persist(path string, doc backend.Document) error {
	if err := s.fs.WriteFile(path, doc.Bytes()); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
