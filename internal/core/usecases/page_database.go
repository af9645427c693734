// Package usecases wires the core components together behind the
// ports the adapter layer implements (spec.md §4.9, §6): the Page
// Database and incremental-rebuild contract, plus the collaborator
// interfaces (logging, progress reporting, config loading, file
// watching, intersphinx fetching) a CLI driver needs to exercise them.
package usecases

import (
	"context"
	"errors"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/postprocess"
)

// ErrCancelled is returned by Flush when an in-flight postprocess run
// was aborted by Cancel (spec.md §4.9 "raise Cancelled at its next
// cancellation check").
var ErrCancelled = errors.New("Cancelled")

// PageEntry is one raw, pre-postprocess record held by the PageDatabase.
type PageEntry struct {
	Page         *entities.Page
	SourceFileId entities.FileId
	Diagnostics  entities.Diagnostics
}

// FlushResult is the cached, fully postprocessed view produced by the
// last successful Flush.
type FlushResult struct {
	Metadata    *postprocess.Metadata
	Diagnostics map[entities.FileId]entities.Diagnostics
}

// PostprocessFunc runs the postprocessor over a snapshot of the raw
// page map; it must poll ctx and return ctx.Err() promptly once
// cancelled (spec.md §4.9 "per-page visit" checkpoint).
type PostprocessFunc func(ctx context.Context, pages map[entities.FileId]*entities.Page) (*postprocess.Metadata, map[entities.FileId]entities.Diagnostics, error)

type flushRequest struct {
	factory PostprocessFunc
	reply   chan flushReply
}

type flushReply struct {
	result *FlushResult
	err    error
}

// PageDatabase is the thread-safe store of raw parsed pages plus the
// single background worker that derives the postprocessed result
// (spec.md §4.9). All field mutations happen behind mu; the worker
// never holds mu while the postprocessor itself runs.
type PageDatabase struct {
	mu                sync.Mutex
	pages             map[entities.FileId]*PageEntry
	orphanDiagnostics map[entities.FileId]entities.Diagnostics
	dirty             mapset.Set[entities.FileId]
	result            *FlushResult

	cancelMu sync.Mutex
	cancelFn context.CancelFunc

	requests    chan flushRequest
	closeWorker sync.Once
}

// NewPageDatabase constructs an empty PageDatabase and starts its
// single background flush worker.
func NewPageDatabase() *PageDatabase {
	db := &PageDatabase{
		pages:             map[entities.FileId]*PageEntry{},
		orphanDiagnostics: map[entities.FileId]entities.Diagnostics{},
		dirty:             mapset.NewThreadUnsafeSet[entities.FileId](),
		requests:          make(chan flushRequest),
	}
	go db.worker()
	return db
}

func (db *PageDatabase) worker() {
	for req := range db.requests {
		result, err := db.runFlush(req.factory)
		req.reply <- flushReply{result: result, err: err}
	}
}

// Set stores a newly parsed page and marks fileid dirty.
func (db *PageDatabase) Set(fileid entities.FileId, page *entities.Page, sourceFileId entities.FileId, diags entities.Diagnostics) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pages[fileid] = &PageEntry{Page: page, SourceFileId: sourceFileId, Diagnostics: diags}
	delete(db.orphanDiagnostics, fileid)
	db.dirty.Add(fileid)
}

// Delete removes fileid and marks it dirty.
func (db *PageDatabase) Delete(fileid entities.FileId) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.pages, fileid)
	delete(db.orphanDiagnostics, fileid)
	db.dirty.Add(fileid)
}

// SetOrphanDiagnostics records diagnostics for a file that failed to
// parse into any page at all.
func (db *PageDatabase) SetOrphanDiagnostics(fileid entities.FileId, diags entities.Diagnostics) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.orphanDiagnostics[fileid] = diags
	db.dirty.Add(fileid)
}

// Get returns the raw entry stored for fileid, if any.
func (db *PageDatabase) Get(fileid entities.FileId) (*PageEntry, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.pages[fileid]
	return e, ok
}

// FileIds returns every fileid currently stored, in no particular
// order.
func (db *PageDatabase) FileIds() []entities.FileId {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]entities.FileId, 0, len(db.pages))
	for fileid := range db.pages {
		out = append(out, fileid)
	}
	return out
}

// Len returns the number of raw pages currently stored.
func (db *PageDatabase) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.pages)
}

// Flush returns the cached postprocessed result if nothing is dirty;
// otherwise it enqueues a task to the single background worker and
// blocks until that task (or a superseding one) completes. factory is
// invoked with a context cancelled by Cancel.
func (db *PageDatabase) Flush(factory PostprocessFunc) (*FlushResult, error) {
	reply := make(chan flushReply, 1)
	db.requests <- flushRequest{factory: factory, reply: reply}
	r := <-reply
	return r.result, r.err
}

func (db *PageDatabase) runFlush(factory PostprocessFunc) (*FlushResult, error) {
	db.mu.Lock()
	if db.dirty.Cardinality() == 0 && db.result != nil {
		cached := db.result
		db.mu.Unlock()
		return cached, nil
	}
	db.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	db.cancelMu.Lock()
	db.cancelFn = cancel
	db.cancelMu.Unlock()
	defer func() {
		db.cancelMu.Lock()
		db.cancelFn = nil
		db.cancelMu.Unlock()
		cancel()
	}()

	db.mu.Lock()
	snapshot := make(map[entities.FileId]*entities.Page, len(db.pages))
	for fileid, entry := range db.pages {
		if ctx.Err() != nil {
			db.mu.Unlock()
			return nil, ErrCancelled
		}
		snapshot[fileid] = entry.Page
	}
	db.mu.Unlock()

	meta, diags, err := factory(ctx, snapshot)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, err
	}

	result := &FlushResult{Metadata: meta, Diagnostics: diags}
	db.mu.Lock()
	db.result = result
	db.dirty.Clear()
	db.mu.Unlock()
	return result, nil
}

// Cancel signals the in-flight flush (if any) to abort at its next
// cancellation check. A flush enqueued afterward supersedes it: the
// worker processes requests strictly in order, so the cancelled task
// returns promptly and the new one runs next.
func (db *PageDatabase) Cancel() {
	db.cancelMu.Lock()
	defer db.cancelMu.Unlock()
	if db.cancelFn != nil {
		db.cancelFn()
	}
}

// Close stops the background worker. Further calls to Flush will block
// forever; Close is intended for shutdown only.
func (db *PageDatabase) Close() {
	db.closeWorker.Do(func() { close(db.requests) })
}
