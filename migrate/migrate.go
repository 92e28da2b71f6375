// Package migrate provides the versioned, crash-resumable migration
// registry for configuration documents.
//
// Steps are keyed by (file class, from-version) and edit documents through
// the update API, so file formatting survives migration. Each step is its
// own durable transaction: the version bump and the step's edits persist
// together before the next step runs, and a crash mid-sequence resumes at
// the first unapplied step.
package migrate

import (
	"fmt"
	"sync"

	"github.com/emberward/confstore/backend"
)

// Class namespaces migrations by the logical role of a file, independent of
// where the file lives on disk.
type Class string

// Step transforms a document in place through its update operations. A step
// must not touch the version field; the registry advances it.
type Step func(doc backend.Document) error

// MigrationError reports a failed step. The document on disk remains at its
// last successfully persisted version; any unpersisted in-memory changes
// from the failed step must be discarded by reloading.
type MigrationError struct {
	Class       Class
	FromVersion int64
	Err         error
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration of %s from version %d failed: %v", e.Class, e.FromVersion, e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error { return e.Err }

// Registry holds migration steps for all file classes.
type Registry struct {
	mu    sync.RWMutex
	steps map[Class]map[int64]Step
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[Class]map[int64]Step)}
}

// Register adds the step that migrates class documents from version from to
// from+1. Registering the same (class, from) twice is an error.
func (r *Registry) Register(class Class, from int64, step Step) error {
	if step == nil {
		return fmt.Errorf("nil step for %s version %d", class, from)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.steps[class]
	if !ok {
		byVersion = make(map[int64]Step)
		r.steps[class] = byVersion
	}
	if _, dup := byVersion[from]; dup {
		return fmt.Errorf("step for %s version %d already registered", class, from)
	}
	byVersion[from] = step
	return nil
}

// Pending returns how many steps a document at the given version still has
// to run.
func (r *Registry) Pending(class Class, version int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for {
		if _, ok := r.steps[class][version]; !ok {
			return n
		}
		n++
		version++
	}
}

// Apply runs every registered step from the document's current version
// upward. After each step the version advances by one and persist is called
// with the document, making that step durable before the next begins. A
// version with no registered step means the document is up to date.
//
// The returned version is the last successfully persisted one, whether or
// not an error occurred.
func (r *Registry) Apply(class Class, doc backend.Document, persist func(backend.Document) error) (int64, error) {
	v, ok := doc.Version()
	if !ok {
		v = 0
	}
	for {
		step := r.step(class, v)
		if step == nil {
			return v, nil
		}
		if err := step(doc); err != nil {
			return v, &MigrationError{Class: class, FromVersion: v, Err: err}
		}
		if err := doc.SetVersion(v + 1); err != nil {
			return v, &MigrationError{Class: class, FromVersion: v, Err: err}
		}
		if persist != nil {
			if err := persist(doc); err != nil {
				return v, &MigrationError{Class: class, FromVersion: v, Err: err}
			}
		}
		v++
	}
}

func (r *Registry) step(class Class, version int64) Step {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.steps[class][version]
}
