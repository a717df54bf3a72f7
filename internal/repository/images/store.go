// Package images reads product diagrams from the images root.
package images

import (
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/kailas-cloud/partsearch/internal/domain"
)

// Store resolves and reads diagram files relative to a root directory.
// Names use forward slashes, as stored in the catalog.
type Store struct {
	root string
	fsys fs.FS
}

// NewDir serves diagrams from a directory on disk.
func NewDir(root string) *Store {
	return &Store{root: root, fsys: os.DirFS(root)}
}

// New resolves against fsys and reports display paths under root.
func New(root string, fsys fs.FS) *Store {
	return &Store{root: root, fsys: fsys}
}

// Root returns the images root.
func (s *Store) Root() string { return s.root }

// Resolve returns root/name when the file exists and is a regular file, otherwise "".
func (s *Store) Resolve(name string) string {
	name, ok := clean(name)
	if !ok {
		return ""
	}
	info, err := fs.Stat(s.fsys, name)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open returns the diagram for streaming.
func (s *Store) Open(name string) (fs.File, error) {
	name, ok := clean(name)
	if !ok {
		return nil, fmt.Errorf("open %q: %w", name, fs.ErrNotExist)
	}
	f, err := s.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open diagram: %w", err)
	}
	return f, nil
}

// Read loads a diagram with its content type guessed from the extension.
// A missing file wraps fs.ErrNotExist.
func (s *Store) Read(name string) (domain.Image, error) {
	name, ok := clean(name)
	if !ok {
		return domain.Image{}, fmt.Errorf("read %q: %w", name, fs.ErrNotExist)
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return domain.Image{}, fmt.Errorf("read diagram: %w", err)
	}
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "image/png"
	}
	return domain.Image{Data: data, ContentType: ct}, nil
}

func clean(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	name = path.Clean(name)
	return name, fs.ValidPath(name)
}
