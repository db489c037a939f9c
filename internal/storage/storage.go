// Package storage provides sandboxed access to the on-device filesystem root
// that sample files (/NN.pcm) and the config file live under: a single real
// filesystem rooted at a base path, every name resolved relative to it so a
// transfer session can never escape its declared root.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is a filesystem sandboxed to a base directory.
type Root struct {
	basePath string
}

// NewRoot creates a Root backed by basePath, creating it if necessary.
func NewRoot(basePath string) (*Root, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", basePath, err)
	}
	return &Root{basePath: basePath}, nil
}

// resolve joins name onto the root, rejecting any attempt to escape it.
func (r *Root) resolve(name string) (string, error) {
	clean := strings.TrimPrefix(filepath.ToSlash(name), "/")
	full := filepath.Join(r.basePath, clean)
	if !strings.HasPrefix(full, filepath.Clean(r.basePath)+string(filepath.Separator)) && full != filepath.Clean(r.basePath) {
		return "", fmt.Errorf("storage: path %q escapes root", name)
	}
	return full, nil
}

// Create creates (or truncates) name for writing.
func (r *Root) Create(name string) (*os.File, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Create(path)
}

// Remove deletes name if present; a missing file is not an error.
func (r *Root) Remove(name string) error {
	path, err := r.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SampleFilename returns the canonical "/NN.pcm" name for a sample number,
// wrapping mod 100 the way a two-digit decimal field does.
func SampleFilename(sampleNumber uint16) string {
	return fmt.Sprintf("/%02d.pcm", sampleNumber%100)
}
