// Package artifact archives the images produced during scanning: card crops,
// profile previews and click-overlay diagnostics.
package artifact

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modq-go/internal/modq"
)

// FileSystemArchive stores artifacts as PNG files under a root directory.
// Keys are slash-separated relative paths ("cards/<id>.png"); Cleanup uses
// file modification times.
type FileSystemArchive struct {
	root string
}

var _ modq.ArtifactStore = (*FileSystemArchive)(nil)

func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &FileSystemArchive{root: root}, nil
}

// Put encodes img as PNG and writes it atomically under key.
func (a *FileSystemArchive) Put(key string, img image.Image) error {
	destPath, err := a.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".artifact-*")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encoding artifact %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp artifact: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storing artifact %s: %w", key, err)
	}
	return nil
}

func (a *FileSystemArchive) Open(key string) (io.ReadCloser, error) {
	srcPath, err := a.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found: %s", key)
		}
		return nil, fmt.Errorf("opening artifact %s: %w", key, err)
	}
	return f, nil
}

// Cleanup removes artifacts last modified before cutoff and prunes any
// directories left empty.
func (a *FileSystemArchive) Cleanup(cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing stale artifact: %w", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("walking archive: %w", err)
	}

	entries, err := os.ReadDir(a.root)
	if err != nil {
		return removed, fmt.Errorf("reading archive root: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			// Remove fails on non-empty directories, which is what we want.
			os.Remove(filepath.Join(a.root, entry.Name()))
		}
	}
	return removed, nil
}

// resolve maps a key to a path under the archive root, rejecting keys that
// would escape it.
func (a *FileSystemArchive) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return "", fmt.Errorf("invalid artifact key: %q", key)
	}
	return filepath.Join(a.root, filepath.FromSlash(key)), nil
}
