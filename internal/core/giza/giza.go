// Package giza implements the YAML "giza" fragment subsystem (spec.md
// §4.5): category registries for steps/extracts/release documents,
// source/inherit reification with cycle detection, {{name}} replacement
// substitution, and page synthesis.
package giza

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/rst/block"
	"github.com/madstone-tech/docpiler/internal/core/rst/inline"
	"github.com/madstone-tech/docpiler/internal/core/specdsl"
)

// Category names the three giza document families, each backed by its
// own registry keyed by file basename prefix.
type Category string

const (
	CategorySteps             Category = "steps"
	CategoryExtracts          Category = "extracts"
	CategoryRelease           Category = "release"
	CategoryPublishedBranches Category = "published-branches"
)

// DirectiveName returns the directive name a synthesized entry's body is
// wrapped in (spec.md §4.5's to_pages description).
func (c Category) DirectiveName() string {
	switch c {
	case CategorySteps:
		return "step"
	case CategoryExtracts:
		return "extract"
	case CategoryRelease:
		return "release_specification"
	default:
		return string(c)
	}
}

// FileRef is a `source:`/`inherit:` parent pointer: an entry's ref in
// another (or the same) giza file.
type FileRef struct {
	File string
	Ref  string
}

// Entry is one reified-or-not giza YAML list item. Ref is required for
// any entry whose name doesn't begin with "_" (published entries);
// Fields holds every schema field beyond ref/source/inherit/replacement,
// keyed exactly as it appeared in YAML.
type Entry struct {
	Ref         string
	Source      *FileRef
	Replacement map[string]string
	Fields      map[string]any
	Line        int
}

func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	e.Line = value.Line
	if v, ok := raw["ref"]; ok {
		e.Ref, _ = v.(string)
		delete(raw, "ref")
	}
	if v, ok := raw["source"]; ok {
		e.Source = parseFileRef(v)
		delete(raw, "source")
	}
	if v, ok := raw["inherit"]; ok {
		if e.Source == nil {
			e.Source = parseFileRef(v)
		}
		delete(raw, "inherit")
	}
	if v, ok := raw["replacement"]; ok {
		e.Replacement = toStringMap(v)
		delete(raw, "replacement")
	}
	e.Fields = raw
	return nil
}

func parseFileRef(v any) *FileRef {
	switch t := v.(type) {
	case string:
		return &FileRef{Ref: t}
	case map[string]any:
		fr := &FileRef{}
		if f, ok := t["file"].(string); ok {
			fr.File = f
		}
		if r, ok := t["ref"].(string); ok {
			fr.Ref = r
		}
		return fr
	default:
		return nil
	}
}

func toStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out
}

// Published reports whether the entry is a publishable (non-underscore
// prefixed ref) entry, per spec.md §4.5.
func (e *Entry) Published() bool {
	return e.Ref != "" && !strings.HasPrefix(e.Ref, "_")
}

// Document is one parsed giza YAML file: a flat entry list plus a
// by-ref index for inheritance lookups within the same file.
type Document struct {
	FileId  entities.FileId
	Entries []*Entry
	ByRef   map[string]*Entry
}

// ParseDocument decodes one giza YAML file's entry list.
func ParseDocument(fileid entities.FileId, source string) (*Document, entities.Diagnostics) {
	var entries []*Entry
	var diags entities.Diagnostics
	if err := yaml.Unmarshal([]byte(source), &entries); err != nil {
		diags = append(diags, entities.Errorf(entities.KindErrorParsingYAMLFile, 1, "%s: %v", fileid, err))
		return &Document{FileId: fileid, ByRef: map[string]*Entry{}}, diags
	}
	doc := &Document{FileId: fileid, Entries: entries, ByRef: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		if e.Ref != "" {
			doc.ByRef[e.Ref] = e
		}
		if e.Published() && e.Ref == "" {
			diags = append(diags, entities.Errorf(entities.KindMissingRef, e.Line, "entry in %s is missing a ref", fileid))
		}
	}
	return doc, diags
}

// Registry holds every parsed Document of one category and the
// predecessor graph used for incremental rebuild (spec.md §4.5's last
// paragraph).
type Registry struct {
	Category  Category
	docs      map[entities.FileId]*Document
	dependsOn map[entities.FileId]map[entities.FileId]bool // file -> files it cites as source/inherit
}

func NewRegistry(category Category) *Registry {
	return &Registry{
		Category:  category,
		docs:      map[entities.FileId]*Document{},
		dependsOn: map[entities.FileId]map[entities.FileId]bool{},
	}
}

// AddDocument registers a parsed file and records its parent-file edges.
func (r *Registry) AddDocument(doc *Document) {
	r.docs[doc.FileId] = doc
	deps := map[entities.FileId]bool{}
	for _, e := range doc.Entries {
		if e.Source != nil && e.Source.File != "" {
			deps[doc.FileId.Join(e.Source.File)] = true
		}
	}
	r.dependsOn[doc.FileId] = deps
}

// Documents returns every document registered so far, in no particular
// order; used by the build driver to enumerate which files need
// ToPages synthesis.
func (r *Registry) Documents() []*Document {
	out := make([]*Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc)
	}
	return out
}

// Dependents returns every file that transitively depends on fileid via
// source/inherit references, used to compute the incremental-rebuild
// set when fileid changes.
func (r *Registry) Dependents(fileid entities.FileId) []entities.FileId {
	seen := map[entities.FileId]bool{}
	var walk func(target entities.FileId)
	walk = func(target entities.FileId) {
		for file, deps := range r.dependsOn {
			if deps[target] && !seen[file] {
				seen[file] = true
				walk(file)
			}
		}
	}
	walk(fileid)
	out := make([]entities.FileId, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type visitKey struct {
	file entities.FileId
	ref  string
}

// Reify resolves one entry's full inheritance chain into a merged Entry
// (spec.md §4.5 step 2): E's own fields win, falling back to the
// parent's for anything E leaves unset; replacement maps merge the same
// way. Cycles are reported as CyclicInheritance and reification stops
// at the cycle, returning the partial chain resolved so far.
func (r *Registry) Reify(fileid entities.FileId, ref string) (*Entry, entities.Diagnostics) {
	return r.reify(fileid, ref, map[visitKey]bool{})
}

func (r *Registry) reify(fileid entities.FileId, ref string, visiting map[visitKey]bool) (*Entry, entities.Diagnostics) {
	key := visitKey{fileid, ref}
	if visiting[key] {
		return nil, entities.Diagnostics{entities.Errorf(entities.KindCyclicInheritance, 0,
			"cyclic giza inheritance at %s#%s", fileid, ref)}
	}
	doc, ok := r.docs[fileid]
	if !ok {
		return nil, entities.Diagnostics{entities.Errorf(entities.KindMissingRef, 0,
			"giza file %s not loaded", fileid)}
	}
	entry, ok := doc.ByRef[ref]
	if !ok {
		return nil, entities.Diagnostics{entities.Errorf(entities.KindMissingRef, 0,
			"ref %q not found in %s", ref, fileid)}
	}
	if entry.Source == nil {
		return entry, nil
	}

	visiting[key] = true
	parentFile := fileid
	if entry.Source.File != "" {
		parentFile = fileid.Join(entry.Source.File)
	}
	parent, diags := r.reify(parentFile, entry.Source.Ref, visiting)
	visiting[key] = false
	if parent == nil {
		return entry, diags
	}

	merged := &Entry{
		Ref:         entry.Ref,
		Line:        entry.Line,
		Replacement: mergeStringMaps(parent.Replacement, entry.Replacement),
		Fields:      mergeFields(parent.Fields, entry.Fields),
	}
	return merged, diags
}

func mergeStringMaps(parent, child map[string]string) map[string]string {
	out := make(map[string]string, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}

func mergeFields(parent, child map[string]any) map[string]any {
	out := make(map[string]any, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}

// Substitute expands every `{{name}}` occurrence found in e's string
// fields (recursively through nested maps/lists) against e.Replacement,
// reporting UnknownSubstitution for unresolved names (spec.md §4.5
// step 3).
func Substitute(e *Entry) entities.Diagnostics {
	var diags entities.Diagnostics
	resolve := func(name string) (string, bool) {
		v, ok := e.Replacement[name]
		if !ok {
			diags = append(diags, entities.Warningf(entities.KindUnknownSubstitution, e.Line,
				"unknown substitution {{%s}} in ref %q", name, e.Ref))
		}
		return v, ok
	}
	e.Fields = substituteValue(e.Fields, resolve).(map[string]any)
	return diags
}

func substituteValue(v any, resolve func(string) (string, bool)) any {
	switch t := v.(type) {
	case string:
		return entities.SubstitutePlaceholders(t, resolve)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = substituteValue(val, resolve)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = substituteValue(val, resolve)
		}
		return out
	default:
		return v
	}
}

// stringField reads a scalar string field, tolerating absence.
func stringField(fields map[string]any, name string) (string, bool) {
	v, ok := fields[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// buildBody parses an entry's free-text fields ("title", "content") as
// embedded reStructuredText in the context of the synthetic page,
// returning the directive's child nodes.
func buildBody(spec *specdsl.Spec, fileid entities.FileId, entry *Entry) []entities.Node {
	var children []entities.Node
	if title, ok := stringField(entry.Fields, "title"); ok && strings.TrimSpace(title) != "" {
		h := entities.NewHeading(entry.Line, "")
		nodes, _ := inline.Parse(title, entry.Line, spec)
		h.SetNodeChildren(nodes)
		children = append(children, h)
	}
	for _, field := range []string{"pre", "content", "action", "post", "result"} {
		text, ok := stringField(entry.Fields, field)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		body := block.NewParser(spec, fileid).Parse(text)
		children = append(children, body.AST.NodeChildren()...)
	}
	return children
}

// buildDirectiveOptions projects an entry's scalar fields into directive
// options, skipping the free-text fields already consumed by buildBody.
func buildDirectiveOptions(entry *Entry) map[string]entities.OptionValue {
	skip := map[string]bool{"title": true, "pre": true, "content": true, "action": true, "post": true, "result": true}
	opts := make(map[string]entities.OptionValue)
	for k, v := range entry.Fields {
		if skip[k] {
			continue
		}
		switch t := v.(type) {
		case string:
			opts[k] = entities.OptionValue{Raw: t, Kind: "string"}
		case bool:
			opts[k] = entities.OptionValue{Raw: fmt.Sprint(t), Kind: "flag", Bool: t}
		case int:
			opts[k] = entities.OptionValue{Raw: fmt.Sprint(t), Kind: "integer", Int: t}
		}
	}
	return opts
}

// ToPages synthesizes every published entry of a giza file into its
// Page(s) (spec.md §4.5's to_pages): steps documents collapse into a
// single procedure page; extracts/release documents synthesize one page
// per entry.
func ToPages(spec *specdsl.Spec, registry *Registry, fileid entities.FileId) ([]*entities.Page, entities.Diagnostics) {
	doc, ok := registry.docs[fileid]
	if !ok {
		return nil, entities.Diagnostics{entities.Errorf(entities.KindMissingFacet, 0, "giza file %s not loaded", fileid)}
	}

	var diags entities.Diagnostics
	var reified []*Entry
	for _, e := range doc.Entries {
		if !e.Published() {
			continue
		}
		merged, d := registry.Reify(fileid, e.Ref)
		diags = append(diags, d...)
		if merged == nil {
			continue
		}
		diags = append(diags, Substitute(merged)...)
		reified = append(reified, merged)
	}

	if registry.Category == CategorySteps {
		outFileid := stepsOutputFileId(fileid)
		page := entities.NewPage(outFileid, doc.rawSourceConcat())
		page.Category = string(CategorySteps)
		proc := &entities.Directive{Domain: "", Name: "procedure"}
		proc.Span = entities.NewSpan(1)
		var steps []entities.Node
		for _, entry := range reified {
			step := &entities.Directive{Domain: "", Name: "step", Argument: argumentOf(entry), Options: buildDirectiveOptions(entry)}
			step.Span = entities.NewSpan(entry.Line)
			step.SetNodeChildren(buildBody(spec, outFileid, entry))
			steps = append(steps, step)
		}
		proc.SetNodeChildren(steps)
		page.AST.SetNodeChildren([]entities.Node{proc})
		return []*entities.Page{page}, diags
	}

	pages := make([]*entities.Page, 0, len(reified))
	for _, entry := range reified {
		outFileid := entryOutputFileId(fileid, registry.Category, entry.Ref)
		page := entities.NewPage(outFileid, "")
		page.Category = string(registry.Category)
		dir := &entities.Directive{Domain: "", Name: registry.Category.DirectiveName(), Argument: argumentOf(entry), Options: buildDirectiveOptions(entry)}
		dir.Span = entities.NewSpan(entry.Line)
		dir.SetNodeChildren(buildBody(spec, outFileid, entry))
		page.AST.SetNodeChildren([]entities.Node{dir})
		pages = append(pages, page)
	}
	return pages, diags
}

func argumentOf(entry *Entry) []string {
	if entry.Ref == "" {
		return nil
	}
	return []string{entry.Ref}
}

// rawSourceConcat lets a synthesized steps page's Page.Source (and thus
// its blake2b fingerprint) reflect the whole document's content, so the
// parse cache still invalidates the procedure page whenever any step's
// YAML changes.
func (d *Document) rawSourceConcat() string {
	var b strings.Builder
	for _, e := range d.Entries {
		b.WriteString(e.Ref)
		b.WriteByte('\n')
	}
	return b.String()
}

func stepsOutputFileId(fileid entities.FileId) entities.FileId {
	name := strings.TrimSuffix(pathBase(string(fileid)), ".yaml")
	name = strings.TrimPrefix(name, "steps-")
	return entities.FileId("steps/" + name + ".rst")
}

func entryOutputFileId(fileid entities.FileId, category Category, ref string) entities.FileId {
	return entities.FileId(string(category) + "/" + ref + ".rst")
}

func pathBase(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}
