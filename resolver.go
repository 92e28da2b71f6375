package confstore

import (
	"fmt"
	"path/filepath"
)

// Resolver maps a (kind, layer) pair to a file path. OS-specific directory
// discovery lives behind this seam; the store never inspects the
// environment itself.
type Resolver interface {
	Resolve(kind FileKind, layer Layer) (string, error)
}

// DirResolver resolves the default relative layout under a single root
// directory:
//
//	settings/global.<ext>
//	settings/profiles/<profile>.<ext>
//	settings/user.<ext>
//	saves/<save>/world.<ext>
//	server/server.<ext>
type DirResolver struct {
	// Root is the base directory.
	Root string

	// SaveID names the active save for the world layer.
	SaveID string

	// Profile names the active settings profile. Empty means "default".
	Profile string

	// Ext is the file extension including the dot. Empty means ".toml".
	Ext string
}

// Resolve implements Resolver.
func (r DirResolver) Resolve(kind FileKind, layer Layer) (string, error) {
	ext := r.Ext
	if ext == "" {
		ext = ".toml"
	}
	switch layer {
	case LayerDefaults:
		return "", fmt.Errorf("%s layer has no file path", layer)
	case LayerGlobal:
		return filepath.Join(r.Root, "settings", "global"+ext), nil
	case LayerProfile:
		profile := r.Profile
		if profile == "" {
			profile = "default"
		}
		return filepath.Join(r.Root, "settings", "profiles", profile+ext), nil
	case LayerUser:
		return filepath.Join(r.Root, "settings", "user"+ext), nil
	case LayerWorld:
		if r.SaveID == "" {
			return "", fmt.Errorf("no save selected for %s/%s", kind, layer)
		}
		return filepath.Join(r.Root, "saves", r.SaveID, "world"+ext), nil
	case LayerServer:
		return filepath.Join(r.Root, "server", "server"+ext), nil
	default:
		return "", fmt.Errorf("unknown layer %d", layer)
	}
}
