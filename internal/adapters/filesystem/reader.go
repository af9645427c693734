package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/usecases"
)

// Ensure Reader implements usecases.AssetLoader.
var _ usecases.AssetLoader = (*Reader)(nil)

// Reader reads project source files and static assets off an afero
// filesystem, rooted at a project's source directory. Using afero
// (rather than the os package directly) lets tests substitute an
// in-memory filesystem for the project tree (spec.md §6).
type Reader struct {
	fs   afero.Fs
	root string
}

// NewReader constructs a Reader rooted at root using the OS filesystem.
func NewReader(root string) *Reader {
	return &Reader{fs: afero.NewOsFs(), root: root}
}

// NewReaderFS constructs a Reader over an arbitrary afero.Fs, for tests
// that substitute an in-memory filesystem.
func NewReaderFS(fs afero.Fs, root string) *Reader {
	return &Reader{fs: fs, root: root}
}

// Load reads fileid's bytes relative to the reader's root, implementing
// usecases.AssetLoader for both literalinclude bodies and checksummed
// static assets.
func (r *Reader) Load(fileid entities.FileId) ([]byte, error) {
	data, err := afero.ReadFile(r.fs, filepath.Join(r.root, string(fileid)))
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", fileid, err)
	}
	return data, nil
}

// sourceExtensions are the file extensions WalkSources collects: pages
// and giza documents. Static assets are loaded on demand via Load, not
// eagerly read here.
var sourceExtensions = map[string]bool{
	".txt":  true,
	".rst":  true,
	".yaml": true,
	".yml":  true,
}

// WalkSources reads every page and giza document under the reader's
// root into a fileid-keyed byte map, the shape
// usecases.ParseProject.ParseSources consumes.
func (r *Reader) WalkSources() (map[entities.FileId][]byte, error) {
	files := map[entities.FileId][]byte{}
	err := afero.Walk(r.fs, r.root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := afero.ReadFile(r.fs, path)
		if err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
		files[entities.NewFileId(r.root, path)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", r.root, err)
	}
	return files, nil
}
