// Package target implements the cross-reference Target Database
// (spec.md §4.6): local target definitions, the intersphinx inventory
// cache, and case-insensitive-fallback lookup across both.
package target

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/madstone-tech/docpiler/internal/core/entities"
)

// LocalDefinition is one alias recorded by define_local_target, pointing
// back to the canonical (most-dots) name used for cross-file ref
// serialization.
type LocalDefinition struct {
	Domain        string
	Name          string
	Alias         string
	Canonical     string
	FileId        entities.FileId
	TitleNodes    []entities.Node
	Html5Id       string
}

// Match is one resolved lookup result, either local (FileId set) or from
// an intersphinx inventory (URL set).
type Match struct {
	Canonical string
	FileId    *entities.FileId
	URL       *string
	Title     []entities.Node
}

// Fetcher is the external collaborator port that retrieves an
// intersphinx inventory's raw bytes for a configured URL; HTTP
// transport and timeouts are its responsibility (spec.md §5).
type Fetcher interface {
	Fetch(url string) ([]byte, error)
}

// Database holds the local and intersphinx target inventories behind one
// mutex, matching spec.md §5's shared-resource policy for TargetDatabase.
type Database struct {
	mu           sync.Mutex
	local        map[string]*LocalDefinition
	intersphinx  []inventorySource
}

type inventorySource struct {
	url     string
	entries []InventoryEntry
}

// NewDatabase constructs an empty Database.
func NewDatabase() *Database {
	return &Database{local: map[string]*LocalDefinition{}}
}

func normalizeTarget(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func localKey(domain, name, target string) string {
	return domain + "\x00" + name + "\x00" + normalizeTarget(target)
}

// canonicalOf picks the alias with the most "." separators, matching
// spec.md §4.6's canonical-name rule.
func canonicalOf(targets []string) string {
	best := ""
	bestDots := -1
	for _, t := range targets {
		dots := strings.Count(t, ".")
		if dots > bestDots {
			best, bestDots = t, dots
		}
	}
	return best
}

// DefineLocalTarget records one `target` node's aliases under domain and
// name, returning the canonical alias (spec.md §4.6).
func (d *Database) DefineLocalTarget(domain, name string, targets []string, fileid entities.FileId, titleNodes []entities.Node, html5Id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	canonical := canonicalOf(targets)
	for _, alias := range targets {
		d.local[localKey(domain, name, alias)] = &LocalDefinition{
			Domain:     domain,
			Name:       name,
			Alias:      alias,
			Canonical:  canonical,
			FileId:     fileid,
			TitleNodes: titleNodes,
			Html5Id:    html5Id,
		}
	}
	return canonical
}

// Lookup resolves domain:name:target, trying local definitions first,
// then each intersphinx inventory in configuration order, and finally
// retrying both case-insensitively if nothing matched exactly. Multiple
// matches are returned as-is; the caller reports AmbiguousTarget.
func (d *Database) Lookup(domain, name, target string) []Match {
	d.mu.Lock()
	defer d.mu.Unlock()

	norm := normalizeTarget(target)
	if m := d.lookupLocalExact(domain, name, norm); len(m) > 0 {
		return m
	}
	if m := d.lookupIntersphinxExact(domain, name, norm); len(m) > 0 {
		return m
	}

	lower := strings.ToLower(norm)
	if m := d.lookupLocalCI(domain, name, lower); len(m) > 0 {
		return m
	}
	return d.lookupIntersphinxCI(domain, name, lower)
}

func (d *Database) lookupLocalExact(domain, name, target string) []Match {
	if def, ok := d.local[localKey(domain, name, target)]; ok {
		return []Match{{Canonical: def.Canonical, FileId: &def.FileId, Title: def.TitleNodes}}
	}
	return nil
}

func (d *Database) lookupLocalCI(domain, name, lowerTarget string) []Match {
	var matches []*LocalDefinition
	for _, def := range d.local {
		if def.Domain == domain && def.Name == name && strings.ToLower(normalizeTarget(def.Alias)) == lowerTarget {
			matches = append(matches, def)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Alias < matches[j].Alias })
	out := make([]Match, 0, len(matches))
	for _, def := range matches {
		out = append(out, Match{Canonical: def.Canonical, FileId: &def.FileId, Title: def.TitleNodes})
	}
	return out
}

func (d *Database) lookupIntersphinxExact(domain, name, target string) []Match {
	var out []Match
	for _, src := range d.intersphinx {
		for _, e := range src.entries {
			if e.Domain == domain && e.Role == name && e.Name == target {
				out = append(out, inventoryMatch(e))
			}
		}
	}
	return out
}

func (d *Database) lookupIntersphinxCI(domain, name, lowerTarget string) []Match {
	var out []Match
	for _, src := range d.intersphinx {
		for _, e := range src.entries {
			if e.Domain == domain && e.Role == name && strings.ToLower(e.Name) == lowerTarget {
				out = append(out, inventoryMatch(e))
			}
		}
	}
	return out
}

func inventoryMatch(e InventoryEntry) Match {
	uri := e.URI
	return Match{
		Canonical: e.Name,
		URL:       &uri,
		Title:     []entities.Node{entities.NewText(1, e.DisplayName)},
	}
}

// FetchError pairs a configured intersphinx URL with the error
// encountered retrieving or decoding it.
type FetchError struct {
	URL string
	Err error
}

func (e FetchError) Error() string { return e.URL + ": " + e.Err.Error() }

// Reset fetches every configured intersphinx URL via fetcher and
// atomically swaps the inventory list in; failures are collected and
// returned rather than raised, so one bad URL doesn't block the rest
// (spec.md §4.6).
func (d *Database) Reset(fetcher Fetcher, urls []string) []FetchError {
	var failures []FetchError
	sources := make([]inventorySource, 0, len(urls))
	for _, url := range urls {
		raw, err := fetcher.Fetch(url)
		if err != nil {
			failures = append(failures, FetchError{URL: url, Err: err})
			continue
		}
		entries, _, err := DecodeInventory(raw)
		if err != nil {
			failures = append(failures, FetchError{URL: url, Err: err})
			continue
		}
		sources = append(sources, inventorySource{url: url, entries: entries})
	}

	d.mu.Lock()
	d.intersphinx = sources
	d.mu.Unlock()

	return failures
}

// CombinedError joins every fetch/decode failure into one error via
// multierr, for callers (e.g. the CLI reporter) that want a single
// summary rather than iterating the per-URL list.
func CombinedError(failures []FetchError) error {
	var err error
	for _, f := range failures {
		err = multierr.Append(err, f)
	}
	return err
}
