package usecases

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/crypto/blake2b"

	"github.com/madstone-tech/docpiler/internal/core/cache"
	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/giza"
	"github.com/madstone-tech/docpiler/internal/core/postprocess"
	"github.com/madstone-tech/docpiler/internal/core/rst/block"
	"github.com/madstone-tech/docpiler/internal/core/specdsl"
	"github.com/madstone-tech/docpiler/internal/core/target"
)

// ParseProject is the whole-project build use case: it fans raw parses
// out across a worker pool, synthesizes giza pages, resolves pending
// asset tasks, stores everything into the page database, and flushes
// the postprocessor — mirroring the teacher's usecases.BuildDocs
// orchestration shape (spec.md §2 "data flow").
type ParseProject struct {
	Spec    *specdsl.Spec
	Config  *entities.ProjectConfig
	Targets *target.Database
	Assets  *AssetTracker
	Pages   *PageDatabase
	Logger  Logger

	// Cache, if set, gates the raw-parse phase of ParseSources against a
	// persisted parse cache (spec.md §4.8): an unchanged source page (and
	// its dependencies) is served from Cache instead of reparsed. Nil
	// disables caching entirely; callers that don't want cache behavior
	// (e.g. `docpiler validate`, which must never touch build state)
	// simply leave it unset.
	Cache *cache.Cache

	cacheHits atomic.Int64
}

// CacheHits reports how many source pages the most recent ParseSources
// call served from Cache instead of reparsing (usecases.BuildStats's
// PagesCached).
func (pp *ParseProject) CacheHits() int {
	return int(pp.cacheHits.Load())
}

// NewParseProject constructs a ParseProject with a freshly initialized
// page database and asset tracker.
func NewParseProject(spec *specdsl.Spec, config *entities.ProjectConfig, targets *target.Database, assetLoader AssetLoader, logger Logger) *ParseProject {
	return &ParseProject{
		Spec:    spec,
		Config:  config,
		Targets: targets,
		Assets:  NewAssetTracker(assetLoader),
		Pages:   NewPageDatabase(),
		Logger:  logger,
	}
}

// hasKind reports whether any diagnostic in diags has the given kind.
func hasKind(diags entities.Diagnostics, kind entities.DiagnosticKind) bool {
	for _, d := range diags {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

type rawParseResult struct {
	FileId entities.FileId
	Page   *entities.Page
	Diags  entities.Diagnostics
}

// ParseSources runs the embarrassingly-parallel raw-parse phase over
// every `.txt`/`.rst` page plus giza-synthesized page, storing each
// result into the page database. Giza documents are parsed and reified
// synchronously first (the inheritance graph must be complete before
// any one document's entries can be resolved), then their synthesized
// pages join the same worker pool as ordinary source pages.
func (pp *ParseProject) ParseSources(ctx context.Context, files map[entities.FileId][]byte) entities.Diagnostics {
	var all entities.Diagnostics
	pp.cacheHits.Store(0)

	registries := map[giza.Category]*giza.Registry{}
	for fileid, data := range files {
		category, ok := fileid.IsGizaYAML()
		if !ok {
			continue
		}
		reg, ok := registries[giza.Category(category)]
		if !ok {
			reg = giza.NewRegistry(giza.Category(category))
			registries[giza.Category(category)] = reg
		}
		doc, diags := giza.ParseDocument(fileid, string(data))
		all = append(all, diags...)
		if hasKind(diags, entities.KindErrorParsingYAMLFile) {
			// The document never decoded into entries at all, so it
			// synthesizes no pages; record its diagnostics against the
			// fileid itself rather than losing them once the build
			// moves on to a page-keyed view (spec.md §4.9
			// set_orphan_diagnostics).
			pp.Pages.SetOrphanDiagnostics(fileid, diags)
			if pp.Cache != nil {
				pp.Cache.SetOrphanDiagnostics(fileid, diags)
			}
		}
		reg.AddDocument(doc)
	}

	// currentHash resolves a page's recorded dependency fileids to their
	// current content hash, for cache.Cache.Lookup's staleness check. A
	// dependency outside this build's file set (already deleted, or
	// never re-read) can't be confirmed fresh, so it's treated as stale.
	currentHash := func(fileid entities.FileId) ([32]byte, bool) {
		data, ok := files[fileid]
		if !ok {
			return [32]byte{}, false
		}
		return blake2b.Sum256(data), true
	}

	type job struct {
		fileid entities.FileId
		parse  func() (*entities.Page, entities.Diagnostics)
	}
	var jobs []job
	for fileid, data := range files {
		if !fileid.IsSourcePage() {
			continue
		}
		fileid, data := fileid, data
		jobs = append(jobs, job{fileid: fileid, parse: func() (*entities.Page, entities.Diagnostics) {
			sourceHash := blake2b.Sum256(data)
			if pp.Cache != nil {
				if page, diags, ok := pp.Cache.Lookup(fileid.Slug(), sourceHash, currentHash); ok {
					pp.cacheHits.Add(1)
					return page, diags
				}
			}
			parser := block.NewParser(pp.Spec, fileid)
			page := parser.Parse(string(data))
			diags := append(entities.Diagnostics{}, parser.Diagnostics()...)
			diags = append(diags, pp.Assets.RunPendingTasks(page)...)
			page.Dependencies[fileid] = page.BLAKE2b
			if pp.Cache != nil {
				pp.Cache.Store(page, diags)
			}
			return page, diags
		}})
	}
	for category, reg := range registries {
		for _, doc := range reg.Documents() {
			pages, diags := giza.ToPages(pp.Spec, reg, doc.FileId)
			all = append(all, diags...)
			for _, page := range pages {
				page, category := page, category
				jobs = append(jobs, job{fileid: page.FileId, parse: func() (*entities.Page, entities.Diagnostics) {
					page.Category = string(category)
					return page, pp.Assets.RunPendingTasks(page)
				}})
			}
		}
	}

	results := make(chan rawParseResult, len(jobs))
	p := pool.New().WithMaxGoroutines(runtime.NumCPU())
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		j := j
		p.Go(func() {
			page, diags := j.parse()
			results <- rawParseResult{FileId: j.fileid, Page: page, Diags: diags}
		})
	}
	p.Wait()
	close(results)

	produced := make(map[entities.FileId]struct{}, len(jobs))
	for r := range results {
		pp.Pages.Set(r.FileId, r.Page, r.FileId, r.Diags)
		all = append(all, r.Diags...)
		produced[r.FileId] = struct{}{}
	}

	// A page left over from a previous pass whose source (or, for a
	// giza-synthesized page, whose backing document) didn't produce a
	// result this round has been removed from the tree: drop it so an
	// incremental `docpiler watch` rebuild doesn't keep postprocessing
	// a page that no longer exists.
	for _, fileid := range pp.Pages.FileIds() {
		if _, ok := produced[fileid]; !ok {
			pp.Pages.Delete(fileid)
		}
	}
	return all
}

// Build runs ParseSources followed by a Flush of the postprocessor over
// everything currently in the page database, using pp.Targets and
// pp.Config as the postprocessor's collaborators.
func (pp *ParseProject) Build(ctx context.Context, files map[entities.FileId][]byte) (*FlushResult, entities.Diagnostics, error) {
	diags := pp.ParseSources(ctx, files)
	result, err := pp.Pages.Flush(func(ctx context.Context, pages map[entities.FileId]*entities.Page) (*postprocess.Metadata, map[entities.FileId]entities.Diagnostics, error) {
		return postprocess.New(pp.Targets, pp.Config).Run(ctx, pages)
	})
	return result, diags, err
}
