// Package cache implements the persisted parse cache (spec.md §4.8):
// a specifier-gated artifact mapping (slug, blake2b) to a previously
// parsed page plus its diagnostics, written atomically and invalidated
// whenever the schema version, project config, or directive/role spec
// changes.
package cache

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/specdsl"
)

// Specifier gates whether a persisted artifact still applies: any change
// to the schema version, project config, or directive/role spec
// invalidates every cached page.
type Specifier struct {
	Version    int
	ConfigHash [32]byte
	SpecHash   [32]byte
}

// HashConfig fingerprints a ProjectConfig via a deterministic JSON
// encoding (encoding/json sorts map keys), so unrelated field-order
// differences never cause a spurious cache miss.
func HashConfig(cfg *entities.ProjectConfig) ([32]byte, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(b), nil
}

// HashSpec fingerprints the raw directive/role spec TOML text.
func HashSpec(specText string) [32]byte {
	return blake2b.Sum256([]byte(specText))
}

// CurrentSpecifier builds the Specifier a fresh build run expects the
// cache to match.
func CurrentSpecifier(cfg *entities.ProjectConfig, specText string) (Specifier, error) {
	configHash, err := HashConfig(cfg)
	if err != nil {
		return Specifier{}, err
	}
	return Specifier{
		Version:    specdsl.EmbeddedVersion,
		ConfigHash: configHash,
		SpecHash:   HashSpec(specText),
	}, nil
}

// PageKey identifies one cached page by slug and source content hash.
type PageKey struct {
	Slug    string
	BLAKE2b [32]byte
}

// CachedPage is one persisted parse result.
type CachedPage struct {
	Page        *entities.Page
	Diagnostics entities.Diagnostics
}

// artifact is the exact shape persisted to disk via encoding/gob.
type artifact struct {
	Specifier         Specifier
	Pages             map[PageKey]*CachedPage
	OrphanDiagnostics map[string]entities.Diagnostics
}

// Cache is the in-memory view of one persisted parse-cache artifact.
type Cache struct {
	specifier         Specifier
	pages             map[PageKey]*CachedPage
	orphanDiagnostics map[string]entities.Diagnostics
}

// New constructs an empty Cache bound to the given specifier (used both
// for a fresh cache and as the fallback when Load discards a stale one).
func New(specifier Specifier) *Cache {
	return &Cache{
		specifier:         specifier,
		pages:             map[PageKey]*CachedPage{},
		orphanDiagnostics: map[string]entities.Diagnostics{},
	}
}

// Load reads a persisted artifact from path. A missing file, a decode
// failure, or a specifier mismatch against want all result in a fresh
// empty Cache rather than an error — the cache is an optimization, never
// a build precondition (spec.md §4.8 "the cache is discarded").
func Load(path string, want Specifier) *Cache {
	f, err := os.Open(path)
	if err != nil {
		return New(want)
	}
	defer f.Close()

	var a artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return New(want)
	}
	if a.Specifier != want {
		return New(want)
	}
	if a.Pages == nil {
		a.Pages = map[PageKey]*CachedPage{}
	}
	if a.OrphanDiagnostics == nil {
		a.OrphanDiagnostics = map[string]entities.Diagnostics{}
	}
	return &Cache{specifier: want, pages: a.Pages, orphanDiagnostics: a.OrphanDiagnostics}
}

// Lookup retrieves a cached page by its slug and source content hash.
// currentHash resolves a dependency FileId to its current on-disk
// content hash; if any of the page's recorded dependencies no longer
// matches, the lookup misses even though the page's own hash hit
// (spec.md §4.8 "Page retrieval").
func (c *Cache) Lookup(slug string, sourceHash [32]byte, currentHash func(entities.FileId) ([32]byte, bool)) (*entities.Page, entities.Diagnostics, bool) {
	cached, ok := c.pages[PageKey{Slug: slug, BLAKE2b: sourceHash}]
	if !ok {
		return nil, nil, false
	}
	if cached.Page.DependsOnStale(currentHash) {
		return nil, nil, false
	}
	return cached.Page, cached.Diagnostics, true
}

// Store records a freshly parsed page and its diagnostics.
func (c *Cache) Store(page *entities.Page, diags entities.Diagnostics) {
	key := PageKey{Slug: page.FileId.Slug(), BLAKE2b: page.BLAKE2b}
	c.pages[key] = &CachedPage{Page: page, Diagnostics: diags}
}

// SetOrphanDiagnostics records diagnostics for a file that failed to
// parse into any page at all.
func (c *Cache) SetOrphanDiagnostics(fileid entities.FileId, diags entities.Diagnostics) {
	c.orphanDiagnostics[string(fileid)] = diags
}

// OrphanDiagnostics returns the diagnostics recorded for files that
// never produced a page.
func (c *Cache) OrphanDiagnostics(fileid entities.FileId) (entities.Diagnostics, bool) {
	d, ok := c.orphanDiagnostics[string(fileid)]
	return d, ok
}

// Persist writes the cache to path atomically: encode to a temporary
// sibling file, then rename over the destination (spec.md §4.8).
func (c *Cache) Persist(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".parsecache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	a := artifact{Specifier: c.specifier, Pages: c.pages, OrphanDiagnostics: c.orphanDiagnostics}
	if err := gob.NewEncoder(tmp).Encode(a); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding parse cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming parse cache into place: %w", err)
	}
	return nil
}
