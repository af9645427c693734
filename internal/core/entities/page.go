package entities

import (
	"bytes"
	"encoding/gob"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/crypto/blake2b"
)

// PendingTask models deferred IO that a directive queues during parsing
// (spec.md §4.4: literalinclude body loading, image checksum). It
// carries a reference to the node that should be mutated once the task
// runs, plus whatever inputs the task needs; pending tasks are executed
// serially, after the initial block/inline parse, before the page is
// stored.
type PendingTask struct {
	Kind   string // "literalinclude" | "image_checksum"
	Node   Parent // the directive node whose options are updated in place
	Path   string
	Extra  map[string]string
}

// StaticAsset is a lazily loaded, content-addressed file referenced by a
// page (an image, a literal-included file, a downloadable attachment).
// Equality and hashing are defined on FileId alone; two StaticAsset
// values with the same FileId are interchangeable regardless of whether
// their Data has been loaded yet.
type StaticAsset struct {
	Key      string
	FileId   FileId
	Path     string
	Upload   bool
	Checksum [32]byte
	Data     []byte
	loaded   bool
}

// NewStaticAsset constructs an unloaded asset reference; Load populates
// Checksum/Data from Data bytes supplied by the caller (the filesystem
// adapter owns the actual read).
func NewStaticAsset(key string, fileid FileId, path string, upload bool) *StaticAsset {
	return &StaticAsset{Key: key, FileId: fileid, Path: path, Upload: upload}
}

// Load computes the checksum of the given bytes and stores them, memoizing
// the expensive-operation-cache contract described in spec.md §5: calling
// Load twice with the same bytes is a no-op after the first call.
func (a *StaticAsset) Load(data []byte) {
	if a.loaded {
		return
	}
	a.Data = data
	a.Checksum = blake2b.Sum256(data)
	a.loaded = true
}

// Loaded reports whether Load has run.
func (a *StaticAsset) Loaded() bool { return a.loaded }

// gobStaticAsset is the exported shape StaticAsset serializes to/from via
// encoding/gob; StaticAsset's own loaded field is unexported and would
// otherwise be silently dropped (gob only walks exported fields).
type gobStaticAsset struct {
	Key      string
	FileId   FileId
	Path     string
	Upload   bool
	Checksum [32]byte
	Data     []byte
	Loaded   bool
}

// GobEncode implements gob.GobEncoder so the parse cache (spec.md §4.8)
// round-trips a StaticAsset's loaded state along with its other fields.
func (a *StaticAsset) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	g := gobStaticAsset{
		Key: a.Key, FileId: a.FileId, Path: a.Path, Upload: a.Upload,
		Checksum: a.Checksum, Data: a.Data, Loaded: a.loaded,
	}
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (a *StaticAsset) GobDecode(data []byte) error {
	var g gobStaticAsset
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	a.Key, a.FileId, a.Path, a.Upload = g.Key, g.FileId, g.Path, g.Upload
	a.Checksum, a.Data, a.loaded = g.Checksum, g.Data, g.Loaded
	return nil
}

// StaticAssetSet is a set of StaticAsset keyed by FileId, as required by
// spec.md §3 ("equality and hash defined on fileid only"). mapset.Set
// requires comparable elements, so the set stores assets by their
// FileId key and keeps the underlying values in a side map.
type StaticAssetSet struct {
	keys   mapset.Set[FileId]
	values map[FileId]*StaticAsset
}

// NewStaticAssetSet constructs an empty set.
func NewStaticAssetSet() *StaticAssetSet {
	return &StaticAssetSet{keys: mapset.NewThreadUnsafeSet[FileId](), values: map[FileId]*StaticAsset{}}
}

// Add inserts or replaces an asset by its FileId.
func (s *StaticAssetSet) Add(a *StaticAsset) {
	s.keys.Add(a.FileId)
	s.values[a.FileId] = a
}

// Contains reports whether an asset with the given FileId is present.
func (s *StaticAssetSet) Contains(id FileId) bool { return s.keys.Contains(id) }

// Get retrieves the asset for a FileId, if present.
func (s *StaticAssetSet) Get(id FileId) (*StaticAsset, bool) {
	a, ok := s.values[id]
	return a, ok
}

// ToSlice returns the set's members in no particular order.
func (s *StaticAssetSet) ToSlice() []*StaticAsset {
	out := make([]*StaticAsset, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	return out
}

// Len returns the number of assets in the set.
func (s *StaticAssetSet) Len() int { return len(s.values) }

// GobEncode implements gob.GobEncoder. StaticAssetSet's fields are
// unexported (mapset.Set has no stable gob encoding of its own), so it
// serializes as the plain values map and rebuilds the keys set on decode.
func (s *StaticAssetSet) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (s *StaticAssetSet) GobDecode(data []byte) error {
	var values map[FileId]*StaticAsset
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&values); err != nil {
		return err
	}
	if values == nil {
		values = map[FileId]*StaticAsset{}
	}
	keys := mapset.NewThreadUnsafeSet[FileId]()
	for k := range values {
		keys.Add(k)
	}
	s.values, s.keys = values, keys
	return nil
}

// Page is the parsed (and, later, postprocessed) representation of one
// source file. BLAKE2b is the canonical content fingerprint used as the
// parse-cache key (spec.md §4.8); it must always equal blake2b(Source)
// per the invariant in spec.md §8.
type Page struct {
	FileId         FileId
	OutputFilename string
	Source         string
	AST            *Root
	BLAKE2b        [32]byte
	Dependencies   map[FileId][32]byte
	StaticAssets   *StaticAssetSet
	PendingTasks   []PendingTask
	Category       string // "" for ordinary pages, else "steps" | "extracts" | "release" | "published-branches"
}

// NewPage constructs a Page, hashing source immediately so the
// BLAKE2b==blake2b(Source) invariant holds from the moment of
// construction onward.
func NewPage(fileid FileId, source string) *Page {
	return &Page{
		FileId:       fileid,
		Source:       source,
		AST:          NewRoot(fileid),
		BLAKE2b:      blake2b.Sum256([]byte(source)),
		Dependencies: map[FileId][32]byte{},
		StaticAssets: NewStaticAssetSet(),
	}
}

// DependsOnStale reports whether any of the page's recorded dependency
// hashes no longer match the provided current-hash lookup; used by the
// parse cache to decide a hit/miss beyond the page's own content hash
// (spec.md §4.8).
func (p *Page) DependsOnStale(current func(FileId) ([32]byte, bool)) bool {
	for dep, want := range p.Dependencies {
		got, ok := current(dep)
		if !ok || got != want {
			return true
		}
	}
	return false
}
