package confstore

import "github.com/emberward/confstore/migrate"

// Layer is one named tier in a file's override chain. Order within a
// chain is fixed per FileKind; later layers override earlier ones.
type Layer uint8

const (
	// LayerDefaults is the built-in, in-memory base layer. Read-only.
	LayerDefaults Layer = iota
	// LayerGlobal is the installation-wide settings file.
	LayerGlobal
	// LayerProfile is a named settings profile.
	LayerProfile
	// LayerUser is the per-user overrides file.
	LayerUser
	// LayerWorld is the per-save world settings file.
	LayerWorld
	// LayerServer is the server runtime configuration file.
	LayerServer
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerDefaults:
		return "defaults"
	case LayerGlobal:
		return "global"
	case LayerProfile:
		return "profile"
	case LayerUser:
		return "user"
	case LayerWorld:
		return "world"
	case LayerServer:
		return "server"
	default:
		return "unknown"
	}
}

// Class returns the migration namespace of the file the layer stores. A
// shared layer file keeps one namespace no matter which chain reads it:
// the global file is a settings-role file even when the world chain loads
// it. ok is false for the defaults layer, which has no file.
func (l Layer) Class() (migrate.Class, bool) {
	switch l {
	case LayerGlobal, LayerProfile, LayerUser:
		return KindSettings.Class(), true
	case LayerWorld:
		return KindWorld.Class(), true
	case LayerServer:
		return KindServer.Class(), true
	default:
		return "", false
	}
}

// FileKind identifies the logical role of a configuration file. It selects
// the layer chain, the on-disk location, and the migration namespace.
type FileKind uint8

const (
	// KindSettings is the game settings file role: built-in defaults,
	// overridden by the global file, a profile, then user overrides.
	KindSettings FileKind = iota
	// KindWorld is the per-save world settings role.
	KindWorld
	// KindServer is the server runtime configuration role.
	KindServer
)

// String returns the kind name.
func (k FileKind) String() string {
	switch k {
	case KindSettings:
		return "settings"
	case KindWorld:
		return "world"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Class returns the migration namespace for the kind.
func (k FileKind) Class() migrate.Class {
	return migrate.Class(k.String())
}

// Chain returns the kind's layer chain in merge order, lowest precedence
// first. A missing file for any layer is an empty table, never an error.
func (k FileKind) Chain() []Layer {
	switch k {
	case KindSettings:
		return []Layer{LayerDefaults, LayerGlobal, LayerProfile, LayerUser}
	case KindWorld:
		return []Layer{LayerDefaults, LayerGlobal, LayerWorld}
	case KindServer:
		return []Layer{LayerDefaults, LayerServer}
	default:
		return nil
	}
}

// HasLayer reports whether layer is part of the kind's chain.
func (k FileKind) HasLayer(layer Layer) bool {
	for _, l := range k.Chain() {
		if l == layer {
			return true
		}
	}
	return false
}
