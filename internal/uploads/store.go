// Package uploads staging: files pushed over the boundary are persisted
// under a server-side directory and referenced by an opaque fileRef of the
// form "upload://<uuid>_<basename>". The browser layer resolves refs back to
// local paths when an upload intent runs.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Scheme prefixes every fileRef handed out by the store.
const Scheme = "upload://"

var (
	// ErrInvalidRef is returned when a ref does not carry the upload scheme
	// or tries to escape the staging directory.
	ErrInvalidRef = errors.New("invalid upload reference")
	// ErrNotFound is returned when a well-formed ref has no backing file.
	ErrNotFound = errors.New("upload not found")
)

// Store stages uploaded files on disk.
type Store struct {
	dir string
}

// NewStore creates the staging directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("uploads directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Register persists the content under a fresh unique name and returns the
// fileRef. The original base name is preserved for the browser's benefit
// (file pickers and server-side validation often key off the extension).
func (s *Store) Register(name string, r io.Reader) (string, error) {
	base := sanitizeBase(name)
	stored := fmt.Sprintf("%s_%s", uuid.NewString(), base)

	f, err := os.Create(filepath.Join(s.dir, stored))
	if err != nil {
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write upload content: %w", err)
	}
	return Scheme + stored, nil
}

// Resolve maps a fileRef back to the staged file's absolute path. Refs
// without the scheme, refs that would escape the staging directory, and refs
// with no backing file are rejected.
func (s *Store) Resolve(ref string) (string, error) {
	if !strings.HasPrefix(ref, Scheme) {
		return "", fmt.Errorf("%w: %q lacks the %q scheme", ErrInvalidRef, ref, Scheme)
	}
	name := strings.TrimPrefix(ref, Scheme)
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, ref)
		}
		return "", fmt.Errorf("failed to stat staged upload: %w", err)
	}
	return path, nil
}

func sanitizeBase(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == ".." {
		return "upload.bin"
	}
	return base
}
