package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Provider backed by the local file system, one directory
// per book under root.
type FS struct {
	root string // absolute path to the library directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("assets: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("assets: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("assets: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// safePath resolves bookID/name against the book's asset directory and
// rejects any result that escapes it (directory traversal).
func (f *FS) safePath(bookID, name string) (string, error) {
	if bookID == "" {
		return "", fmt.Errorf("assets: book id is required")
	}
	if strings.ContainsAny(bookID, `/\`) || strings.Contains(bookID, "..") {
		return "", fmt.Errorf("assets: invalid book id: %s", bookID)
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("assets: absolute paths not allowed: %s", name)
	}
	bookDir := filepath.Join(f.root, bookID)
	abs, err := filepath.Abs(filepath.Join(bookDir, cleaned))
	if err != nil {
		return "", fmt.Errorf("assets: resolve path: %w", err)
	}
	// Ensure the resolved path is still under the book's directory.
	if !strings.HasPrefix(abs, bookDir+string(os.PathSeparator)) && abs != bookDir {
		return "", fmt.Errorf("assets: path escapes book directory: %s", name)
	}
	return abs, nil
}

// Write atomically stores an asset: tmp file, fsync, rename.
func (f *FS) Write(bookID, name string, data []byte) error {
	abs, err := f.safePath(bookID, name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("assets: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".lectern-tmp-*")
	if err != nil {
		return fmt.Errorf("assets: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("assets: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("assets: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("assets: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("assets: rename: %w", err)
	}
	success = true
	return nil
}

// Read returns the raw bytes of a stored asset.
func (f *FS) Read(bookID, name string) ([]byte, error) {
	abs, err := f.safePath(bookID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("assets: read %s/%s: %w", bookID, name, err)
	}
	return data, nil
}

// Remove deletes the book's asset directory and everything in it.
func (f *FS) Remove(bookID string) error {
	abs, err := f.safePath(bookID, ".")
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("assets: remove %s: %w", bookID, err)
	}
	return nil
}

var _ Provider = (*FS)(nil)
