package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for artifact access failures.
var (
	ErrInvalidName = errors.New("invalid artifact name")
	ErrNotFound    = errors.New("artifact not found")
)

// Store serves firmware binaries by name from a single root directory. Names
// are restricted to one relative path segment so a request can never resolve
// outside the root.
type Store struct {
	root       string
	publicBase string
}

// NewStore creates a Store rooted at dir. publicBase is the externally
// reachable base URL used when building artifact download URLs for devices.
func NewStore(dir, publicBase string) *Store {
	return &Store{
		root:       dir,
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

// SafeName rejects any artifact name that is not a single relative path
// segment. The check runs before any filesystem access.
func SafeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: name must be relative", ErrInvalidName)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, '\\') {
		return fmt.Errorf("%w: name must be a single path segment", ErrInvalidName)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: name must not reference directories", ErrInvalidName)
	}
	return nil
}

// Exists reports whether a regular file with the given name is present under
// the root. Unsafe names fail with ErrInvalidName, missing or non-regular
// files with ErrNotFound.
func (s *Store) Exists(name string) error {
	if err := SafeName(name); err != nil {
		return err
	}
	info, err := os.Stat(filepath.Join(s.root, name))
	if err != nil || !info.Mode().IsRegular() {
		return ErrNotFound
	}
	return nil
}

// Open returns a reader streaming the artifact's content. The caller owns the
// returned ReadCloser.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	if err := s.Exists(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		return nil, fmt.Errorf("opening artifact %s: %w", name, err)
	}
	return f, nil
}

// List enumerates the regular files directly under the root, sorted
// lexicographically.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading artifact dir: %w", err)
	}
	// os.ReadDir returns entries sorted by filename.
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// URL returns the publicly fetchable download URL for the named artifact.
func (s *Store) URL(name string) string {
	return s.publicBase + "/ota/artifacts/" + name
}
