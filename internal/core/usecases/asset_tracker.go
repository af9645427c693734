package usecases

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/madstone-tech/docpiler/internal/core/entities"
)

// assetCacheKey memoizes an expensive per-asset operation (a
// literalinclude read-and-trim, or an image checksum) by the asset's
// FileId plus a hash of the options that shaped the result (spec.md §5
// "expensive_operation_cache").
type assetCacheKey struct {
	FileId      entities.FileId
	OptionsHash string
}

type assetCacheEntry struct {
	content string
	diags   entities.Diagnostics
}

// AssetTracker resolves the pending tasks a directive queues during
// parsing (literalinclude body loading, image checksum) and maintains
// the asset-dependency graph used for incremental rebuild (spec.md §3
// "Ownership": static assets are shared by reference by the owning
// page's static-asset set and the asset-dependency graph).
type AssetTracker struct {
	loader AssetLoader

	mu         sync.Mutex
	cache      map[assetCacheKey]assetCacheEntry
	dependents map[entities.FileId]map[entities.FileId]bool // asset fileid -> dependent page fileids
}

// NewAssetTracker constructs an AssetTracker backed by loader for
// reading the actual file bytes (the adapter layer's job).
func NewAssetTracker(loader AssetLoader) *AssetTracker {
	return &AssetTracker{
		loader:     loader,
		cache:      map[assetCacheKey]assetCacheEntry{},
		dependents: map[entities.FileId]map[entities.FileId]bool{},
	}
}

// RunPendingTasks executes every pending task queued on page, mutating
// the placeholder directive nodes in place and registering the page's
// static assets in the dependency graph. It returns diagnostics raised
// while resolving tasks; page.PendingTasks is cleared on return.
func (t *AssetTracker) RunPendingTasks(page *entities.Page) entities.Diagnostics {
	var diags entities.Diagnostics
	for _, task := range page.PendingTasks {
		switch task.Kind {
		case "literalinclude":
			diags = append(diags, t.runLiteralInclude(page, task)...)
		case "checksum":
			diags = append(diags, t.runChecksum(page, task)...)
		}
	}
	page.PendingTasks = nil

	for _, asset := range page.StaticAssets.ToSlice() {
		t.registerDependent(asset.FileId, page.FileId)
	}
	return diags
}

func (t *AssetTracker) registerDependent(asset, page entities.FileId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	deps, ok := t.dependents[asset]
	if !ok {
		deps = map[entities.FileId]bool{}
		t.dependents[asset] = deps
	}
	deps[page] = true
}

// Dependents returns, in no particular order, the pages that reference
// assetFileId — the set that must be re-postprocessed if the asset
// changes.
func (t *AssetTracker) Dependents(assetFileId entities.FileId) []entities.FileId {
	t.mu.Lock()
	defer t.mu.Unlock()
	deps := t.dependents[assetFileId]
	out := make([]entities.FileId, 0, len(deps))
	for fileid := range deps {
		out = append(out, fileid)
	}
	return out
}

func (t *AssetTracker) runChecksum(page *entities.Page, task entities.PendingTask) entities.Diagnostics {
	dir, ok := task.Node.(*entities.Directive)
	if !ok {
		return nil
	}
	fileid := page.FileId.Join(task.Path)
	asset, ok := page.StaticAssets.Get(fileid)
	if !ok {
		return entities.Diagnostics{entities.Errorf(entities.KindErrorLoadingFile, dir.NodeSpan().StartLine(), "no registered static asset for %q", task.Path)}
	}

	key := assetCacheKey{FileId: fileid}
	t.mu.Lock()
	cached, hit := t.cache[key]
	t.mu.Unlock()
	if hit {
		asset.Load([]byte(cached.content))
	} else {
		data, err := t.loader.Load(fileid)
		if err != nil {
			return entities.Diagnostics{entities.Errorf(entities.KindCannotOpenFile, dir.NodeSpan().StartLine(), "cannot open %q: %v", task.Path, err)}
		}
		asset.Load(data)
		t.mu.Lock()
		t.cache[key] = assetCacheEntry{content: string(data)}
		t.mu.Unlock()
	}

	if dir.Options == nil {
		dir.Options = map[string]entities.OptionValue{}
	}
	dir.Options["checksum"] = entities.OptionValue{Raw: hex.EncodeToString(asset.Checksum[:]), Kind: "string"}
	return nil
}

func (t *AssetTracker) runLiteralInclude(page *entities.Page, task entities.PendingTask) entities.Diagnostics {
	dir, ok := task.Node.(*entities.Directive)
	if !ok {
		return nil
	}
	line := dir.NodeSpan().StartLine()
	fileid := page.FileId.Join(task.Path)

	key := assetCacheKey{FileId: fileid, OptionsHash: optionsHash(task.Extra)}
	t.mu.Lock()
	cached, hit := t.cache[key]
	t.mu.Unlock()
	if hit {
		dir.BlockText = cached.content
		page.Dependencies[fileid] = sha256ToBlake(cached.content)
		return cached.diags
	}

	data, err := t.loader.Load(fileid)
	if err != nil {
		return entities.Diagnostics{entities.Errorf(entities.KindCannotOpenFile, line, "cannot open %q: %v", task.Path, err)}
	}
	content := string(data)

	var diags entities.Diagnostics
	if sa, ok := task.Extra["start-after"]; ok {
		idx := strings.Index(content, sa)
		if idx < 0 {
			diags = append(diags, entities.Errorf(entities.KindInvalidLiteralInclude, line, "start-after anchor %q not found in %q", sa, task.Path))
		} else {
			content = content[idx+len(sa):]
		}
	}
	if eb, ok := task.Extra["end-before"]; ok {
		idx := strings.Index(content, eb)
		if idx < 0 {
			diags = append(diags, entities.Errorf(entities.KindInvalidLiteralInclude, line, "end-before anchor %q not found in %q", eb, task.Path))
		} else {
			content = content[:idx]
		}
	}
	if _, ok := task.Extra["dedent"]; ok {
		content = dedent(content)
	}
	content = strings.Trim(content, "\n")

	dir.BlockText = content
	if lang, ok := task.Extra["language"]; ok {
		if dir.Options == nil {
			dir.Options = map[string]entities.OptionValue{}
		}
		dir.Options["language"] = entities.OptionValue{Raw: lang, Kind: "string"}
	}
	if raw, ok := task.Extra["emphasize-lines"]; ok {
		if dir.Options == nil {
			dir.Options = map[string]entities.OptionValue{}
		}
		dir.Options["emphasize-lines"] = entities.OptionValue{Raw: raw, Kind: "linenos"}
	}

	page.Dependencies[fileid] = sha256ToBlake(content)
	t.mu.Lock()
	t.cache[key] = assetCacheEntry{content: content, diags: diags}
	t.mu.Unlock()
	return diags
}

// dedent strips the minimum leading-whitespace run shared by every
// non-empty line.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	min := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := len(l) - len(strings.TrimLeft(l, " \t"))
		if min == -1 || indent < min {
			min = indent
		}
	}
	if min <= 0 {
		return s
	}
	for i, l := range lines {
		if len(l) >= min {
			lines[i] = l[min:]
		}
	}
	return strings.Join(lines, "\n")
}

// optionsHash fingerprints the subset of task options that influence a
// literalinclude's resolved content, in a stable field order.
func optionsHash(extra map[string]string) string {
	var b strings.Builder
	for _, k := range []string{"start-after", "end-before", "dedent", "language", "emphasize-lines"} {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(extra[k])
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// sha256ToBlake produces a dependency-hash value for literalinclude
// content using the same [32]byte shape as Page.Dependencies; sha256 is
// sufficient here since this fingerprint only gates re-postprocessing,
// never the content-addressed parse cache key (which remains blake2b
// per spec.md §4.8).
func sha256ToBlake(content string) [32]byte {
	return sha256.Sum256([]byte(content))
}
