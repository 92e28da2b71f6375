package confstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSystem is the storage seam the store reads and writes through. The
// default implementation uses the local filesystem; tests substitute their
// own to inject failures.
type FileSystem interface {
	// ReadFile returns the file contents. A missing file returns an
	// error satisfying os.IsNotExist / fs.ErrNotExist.
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the file contents atomically, creating parent
	// directories as needed. Concurrent external writers are not
	// coordinated; the last rename wins.
	WriteFile(path string, data []byte) error
}

// OSFileSystem implements FileSystem on the local disk. Writes go to a
// temporary file in the target directory followed by an atomic rename.
type OSFileSystem struct{}

// ReadFile implements FileSystem.
func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile implements FileSystem.
func (OSFileSystem) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // cleanup on failure
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
