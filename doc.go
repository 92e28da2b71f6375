// Package confstore provides the layered configuration store for Emberward.
//
// The confstore package manages loading, merging, editing, and migrating
// every configuration file the game touches: player settings, per-world
// options, and dedicated-server configuration. Files are edited in place,
// preserving the owner's comments, ordering, and formatting.
//
// # Architecture
//
// Each file kind reads through a fixed chain of layers, higher layers
// overriding lower ones key by key:
//
//	Settings                World                 Server
//	┌──────────────┐        ┌──────────────┐      ┌──────────────┐
//	│  4. User     │        │  3. World    │      │  2. Server   │
//	├──────────────┤        ├──────────────┤      ├──────────────┤
//	│  3. Profile  │        │  2. Global   │      │  1. Defaults │
//	├──────────────┤        ├──────────────┤      └──────────────┘
//	│  2. Global   │        │  1. Defaults │
//	├──────────────┤        └──────────────┘
//	│  1. Defaults │
//	└──────────────┘
//
// A missing layer file is an empty layer, never an error. The defaults
// layer is in-memory and read-only.
//
// # Sub-packages
//
//   - value: format-neutral configuration values and deep merging
//   - backend: document and edit-operation abstractions over file formats
//   - backend/tomldoc: TOML documents with formatting-preserving edits
//   - backend/jsondoc: JSON documents with formatting-preserving edits
//   - migrate: versioned, crash-resumable file migrations
//   - diff: change classification between configuration snapshots
//   - watch: debounced file watching for live reload
//
// # Basic Usage
//
// Open a store over a data directory and read a typed snapshot:
//
//	store := confstore.New(confstore.DirResolver{Root: dataDir})
//	defer store.Close()
//
//	cfg, err := confstore.Effective[ServerConfig](store, confstore.KindServer)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Write one key without disturbing the rest of the file:
//
//	err = store.Set(confstore.KindServer, confstore.LayerServer,
//	    "network.port", value.Integer(9000))
//
// # Live Reload
//
// Watch a kind to be told when its files change on disk:
//
//	sub, err := store.Watch(confstore.KindServer, func(kind confstore.FileKind, old, new value.Value) {
//	    applyRuntimeChanges(old, new)
//	})
//	defer sub.Cancel()
//
// # Error Handling
//
// The package defines several error values and types:
//
//   - ErrUnknownKind: file kind is not one of the defined kinds
//   - ErrLayerNotInChain: layer does not belong to the kind's chain
//   - ErrReadOnlyLayer: attempted write to the defaults layer
//   - ErrStoreClosed: operation after Close
//   - IOError: file read or write failure with operation and path
//
// Backend errors (backend.ErrNotFound, backend.ParseError and friends)
// pass through unwrapped and match with errors.Is and errors.As.
package confstore
