// Package postprocess implements the nine ordered AST-finalization passes
// described in spec.md §4.7: include expansion, title mapping, ref/target
// resolution, toctree construction, breadcrumbs, and substitution
// expansion, run once per build over an immutable snapshot of the raw
// page map.
package postprocess

import (
	"context"
	"sort"
	"strings"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/target"
)

// TocTreeNode is one resolved node of the project's navigation tree
// (spec.md §4.7 step 6).
type TocTreeNode struct {
	Title    string
	Slug     string
	URL      string
	IsURL    bool
	Drawer   bool
	Children []*TocTreeNode
}

// Metadata is the postprocessor's non-AST output (spec.md §4.7's "Output").
type Metadata struct {
	Title             map[string]string
	Toctree           []*TocTreeNode
	ToctreeOrder      []string
	ParentPaths       map[string][]string
	PageGroups        map[string][]string
	PublishedBranches map[string]any
	QueryFields       map[string]map[string]any
}

// DevhubFieldSets configures the devhub query-field accumulator variant
// (spec.md §4.7's final paragraph): directive names whose content or
// `options.name` should be captured into page.query_fields.
type DevhubFieldSets struct {
	BlockFields []string
	ListFields  []string
}

// Postprocessor owns the collaborators the passes consult: the target
// database for ref/target resolution and the project configuration for
// toc_landing_pages / page_groups / substitutions.
type Postprocessor struct {
	Targets *target.Database
	Config  *entities.ProjectConfig
	Devhub  *DevhubFieldSets
}

// New constructs a Postprocessor.
func New(targets *target.Database, config *entities.ProjectConfig) *Postprocessor {
	return &Postprocessor{Targets: targets, Config: config}
}

// Run executes all nine passes over pages (mutated into final form) and
// returns the derived metadata document plus diagnostics raised along
// the way, keyed by the file that raised them. ctx is polled once per
// page at the top of every pass's outer loop (spec.md §4.9's "per-page
// visit" checkpoint); a cancelled context aborts the run and returns
// ctx.Err() instead of a partial result.
func (pp *Postprocessor) Run(ctx context.Context, pages map[entities.FileId]*entities.Page) (*Metadata, map[entities.FileId]entities.Diagnostics, error) {
	diags := make(map[entities.FileId]entities.Diagnostics)
	add := func(fileid entities.FileId, d ...*entities.Diagnostic) {
		if len(d) == 0 {
			return
		}
		diags[fileid] = append(diags[fileid], d...)
	}

	// 1. populate_include_nodes
	for fileid, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		visiting := map[entities.FileId]bool{fileid: true}
		pp.populateIncludeNodes(page, pages, visiting, func(d *entities.Diagnostic) { add(fileid, d) })
	}

	meta := &Metadata{
		Title:       map[string]string{},
		ParentPaths: map[string][]string{},
		PageGroups:  pp.resolvePageGroups(pages),
		QueryFields: map[string]map[string]any{},
	}

	// 2. build_slug_title_mapping
	for fileid, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if h := firstHeading(page.AST); h != nil {
			meta.Title[fileid.Slug()] = headingText(h)
		}
	}

	// 3. add_titles_to_label_targets
	for _, page := range pages {
		addTitlesToLabelTargets(page.AST)
	}

	// 4. handle_target
	for fileid, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		walk(page.AST, func(n entities.Node) {
			t, ok := n.(*entities.Target)
			if !ok {
				return
			}
			var titleNodes []entities.Node
			for _, c := range t.NodeChildren() {
				if rt, ok := c.(*entities.TargetRefTitle); ok {
					titleNodes = rt.NodeChildren()
				}
			}
			pp.Targets.DefineLocalTarget(t.Domain, t.Name, []string{t.Name}, fileid, titleNodes, "")
		})
	}

	// 5. handle_refs
	for fileid, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		walk(page.AST, func(n entities.Node) {
			ref, ok := n.(*entities.RefRole)
			if !ok {
				return
			}
			matches := pp.Targets.Lookup(ref.Domain, ref.Name, ref.Target)
			switch len(matches) {
			case 0:
				add(fileid, entities.Errorf(entities.KindTargetNotFound, ref.NodeSpan().StartLine(),
					"no target for %s:%s:%s", ref.Domain, ref.Name, ref.Target))
			case 1:
				m := matches[0]
				if m.FileId != nil {
					id := *m.FileId
					ref.FileId = &id
				}
				if m.URL != nil {
					u := *m.URL
					ref.URL = &u
				}
				ref.SetNodeChildren(cloneAll(m.Title))
			default:
				add(fileid, entities.Errorf(entities.KindAmbiguousTarget, ref.NodeSpan().StartLine(),
					"ambiguous target for %s:%s:%s (%d matches)", ref.Domain, ref.Name, ref.Target, len(matches)))
			}
		})
	}

	// 6+7+8. build_toctree, breadcrumbs, toctree_order
	root := rootPage(pages)
	if root != nil {
		visited := map[string]bool{}
		meta.Toctree = pp.buildToctreeChildren(root, pages, visited, nil, meta.ParentPaths)
		meta.ToctreeOrder = flattenToctree(meta.Toctree)
	}

	// 9. substitutions
	defs := collectSubstitutionDefinitions(pages, pp.Config.Substitutions)
	for fileid, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		walk(page.AST, func(n entities.Node) {
			ref, ok := n.(*entities.SubstitutionReference)
			if !ok {
				return
			}
			nodes, subDiags := resolveSubstitution(ref.Name, defs, map[string]bool{}, ref.NodeSpan().StartLine())
			add(fileid, subDiags...)
			ref.SetNodeChildren(cloneAll(nodes))
		})
	}

	if pp.Devhub != nil {
		for fileid, page := range pages {
			meta.QueryFields[fileid.Slug()] = pp.collectQueryFields(page)
		}
	}

	return meta, diags, nil
}

// walk visits n and, recursively, every descendant in document order.
func walk(n entities.Node, fn func(entities.Node)) {
	fn(n)
	if p, ok := n.(entities.Parent); ok {
		for _, c := range p.NodeChildren() {
			walk(c, fn)
		}
	}
}

func cloneAll(nodes []entities.Node) []entities.Node {
	out := make([]entities.Node, len(nodes))
	for i, n := range nodes {
		out[i] = entities.CloneNode(n)
	}
	return out
}

// --- Pass 1: populate_include_nodes -----------------------------------------

func (pp *Postprocessor) populateIncludeNodes(page *entities.Page, pages map[entities.FileId]*entities.Page, visiting map[entities.FileId]bool, onDiag func(*entities.Diagnostic)) {
	var walkNode func(n entities.Node)
	walkNode = func(n entities.Node) {
		dir, ok := n.(*entities.Directive)
		if !ok || dir.Name != "include" {
			if p, ok := n.(entities.Parent); ok {
				for _, c := range p.NodeChildren() {
					walkNode(c)
				}
			}
			return
		}
		if len(dir.Argument) == 0 {
			return
		}
		included := findPageBySlug(pages, dir.Argument[0])
		if included == nil {
			onDiag(entities.Errorf(entities.KindTargetNotFound, dir.NodeSpan().StartLine(), "include target %q not found", dir.Argument[0]))
			return
		}
		if visiting[included.FileId] {
			onDiag(entities.Errorf(entities.KindInvalidLiteralInclude, dir.NodeSpan().StartLine(), "cyclic include of %q", dir.Argument[0]))
			return
		}
		visiting[included.FileId] = true
		children := cloneAll(included.AST.NodeChildren())
		dir.SetNodeChildren(children)
		page.Dependencies[included.FileId] = included.BLAKE2b
		for _, c := range children {
			walkNode(c)
		}
		visiting[included.FileId] = false
	}
	walkNode(page.AST)
}

func findPageBySlug(pages map[entities.FileId]*entities.Page, raw string) *entities.Page {
	want := strings.TrimPrefix(strings.TrimSpace(raw), "/")
	want = strings.TrimSuffix(want, ".txt")
	want = strings.TrimSuffix(want, ".rst")
	for fileid, page := range pages {
		if fileid.Slug() == want {
			return page
		}
	}
	return nil
}

// --- Pass 2: build_slug_title_mapping ----------------------------------------

func firstHeading(n entities.Node) *entities.Heading {
	var found *entities.Heading
	var walkNode func(entities.Node)
	walkNode = func(n entities.Node) {
		if found != nil {
			return
		}
		if h, ok := n.(*entities.Heading); ok {
			found = h
			return
		}
		if p, ok := n.(entities.Parent); ok {
			for _, c := range p.NodeChildren() {
				walkNode(c)
			}
		}
	}
	walkNode(n)
	return found
}

func headingText(h *entities.Heading) string {
	var b strings.Builder
	walk(h, func(n entities.Node) {
		if t, ok := n.(*entities.Text); ok {
			b.WriteString(t.Value)
		}
	})
	return b.String()
}

// --- Pass 3: add_titles_to_label_targets -------------------------------------

func addTitlesToLabelTargets(root entities.Node) {
	var walkNode func(entities.Node)
	walkNode = func(n entities.Node) {
		p, ok := n.(entities.Parent)
		if !ok {
			return
		}
		children := p.NodeChildren()
		for i, c := range children {
			// entities.Target has a single Name field holding the anchor
			// itself rather than the spec's separate domain/name type tag,
			// so every explicit target is eligible here rather than only
			// those literally named "std:label".
			if t, ok := c.(*entities.Target); ok {
				if i+1 < len(children) {
					if sec, ok := children[i+1].(*entities.Section); ok {
						if h := firstHeadingDirectChild(sec); h != nil {
							title := &entities.TargetRefTitle{}
							title.Span = h.Span
							title.SetNodeChildren(cloneAll(h.NodeChildren()))
							t.SetNodeChildren(append(t.NodeChildren(), title))
						}
					}
				}
			}
			walkNode(c)
		}
	}
	walkNode(root)
}

func firstHeadingDirectChild(sec *entities.Section) *entities.Heading {
	for _, c := range sec.NodeChildren() {
		if h, ok := c.(*entities.Heading); ok {
			return h
		}
	}
	return nil
}

// --- Passes 6-8: build_toctree, breadcrumbs, toctree_order -------------------

// resolvePageGroups expands each page_groups entry's glob patterns
// (spec.md §3's page_groups, e.g. `"tutorials": ["tutorial/*"]`) against
// every page slug currently in the build, so the returned metadata lists
// actual member slugs rather than the raw, possibly-wildcarded patterns
// from docpiler.toml.
func (pp *Postprocessor) resolvePageGroups(pages map[entities.FileId]*entities.Page) map[string][]string {
	if len(pp.Config.PageGroups) == 0 {
		return pp.Config.PageGroups
	}

	slugs := make([]string, 0, len(pages))
	for fileid := range pages {
		slugs = append(slugs, fileid.Slug())
	}
	sort.Strings(slugs)

	resolved := make(map[string][]string, len(pp.Config.PageGroups))
	for group, patterns := range pp.Config.PageGroups {
		var members []string
		for _, slug := range slugs {
			if entities.MatchAny(slug, patterns) {
				members = append(members, slug)
			}
		}
		resolved[group] = members
	}
	return resolved
}

func rootPage(pages map[entities.FileId]*entities.Page) *entities.Page {
	for fileid, page := range pages {
		if fileid.Slug() == "contents" {
			return page
		}
	}
	for fileid, page := range pages {
		if fileid.Slug() == "index" {
			return page
		}
	}
	return nil
}

func (pp *Postprocessor) buildToctreeChildren(page *entities.Page, pages map[entities.FileId]*entities.Page, visited map[string]bool, path []string, parentPaths map[string][]string) []*TocTreeNode {
	slug := page.FileId.Slug()
	if visited[slug] {
		return nil
	}
	visited[slug] = true

	var nodes []*TocTreeNode
	walk(page.AST, func(n entities.Node) {
		tt, ok := n.(*entities.TocTreeDirective)
		if !ok {
			return
		}
		for _, e := range tt.Entries {
			tn := &TocTreeNode{Title: e.Title, Slug: e.Slug, URL: e.URL, IsURL: e.IsURL}
			if !e.IsURL {
				tn.Drawer = !contains(pp.Config.TocLandingPages, e.Slug)
				parentPaths[e.Slug] = append(append([]string(nil), path...), slug)
				if childPage := pageBySlug(pages, e.Slug); childPage != nil && !visited[e.Slug] {
					tn.Children = pp.buildToctreeChildren(childPage, pages, visited, append(append([]string(nil), path...), slug), parentPaths)
				}
			}
			nodes = append(nodes, tn)
		}
	})
	return nodes
}

func pageBySlug(pages map[entities.FileId]*entities.Page, slug string) *entities.Page {
	for fileid, page := range pages {
		if fileid.Slug() == slug {
			return page
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func flattenToctree(nodes []*TocTreeNode) []string {
	var out []string
	var walkNode func([]*TocTreeNode)
	walkNode = func(nodes []*TocTreeNode) {
		for _, n := range nodes {
			if !n.IsURL {
				out = append(out, n.Slug)
			}
			walkNode(n.Children)
		}
	}
	walkNode(nodes)
	return out
}

// --- Pass 9: substitutions ----------------------------------------------------

func collectSubstitutionDefinitions(pages map[entities.FileId]*entities.Page, configSubst map[string]string) map[string][]entities.Node {
	defs := make(map[string][]entities.Node)
	for _, page := range pages {
		walk(page.AST, func(n entities.Node) {
			if sd, ok := n.(*entities.SubstitutionDefinition); ok {
				defs[sd.Name] = sd.NodeChildren()
			}
		})
	}
	for name, value := range configSubst {
		if _, ok := defs[name]; !ok {
			defs[name] = []entities.Node{entities.NewText(1, value)}
		}
	}
	return defs
}

func resolveSubstitution(name string, defs map[string][]entities.Node, visiting map[string]bool, line int) ([]entities.Node, entities.Diagnostics) {
	if visiting[name] {
		return nil, entities.Diagnostics{entities.Errorf(entities.KindSubstitutionRefError, line, "cyclic substitution %q", name)}
	}
	nodes, ok := defs[name]
	if !ok {
		return nil, entities.Diagnostics{entities.Warningf(entities.KindUnknownSubstitution, line, "unknown substitution %q", name)}
	}

	visiting[name] = true
	defer func() { visiting[name] = false }()

	var out []entities.Node
	var diags entities.Diagnostics
	for _, n := range nodes {
		if ref, ok := n.(*entities.SubstitutionReference); ok {
			resolved, sub := resolveSubstitution(ref.Name, defs, visiting, line)
			diags = append(diags, sub...)
			out = append(out, resolved...)
			continue
		}
		out = append(out, n)
	}
	return out, diags
}

// --- devhub variant: query-field accumulator ---------------------------------

func (pp *Postprocessor) collectQueryFields(page *entities.Page) map[string]any {
	fields := map[string]any{}
	blockSet := toSet(pp.Devhub.BlockFields)
	listSet := toSet(pp.Devhub.ListFields)
	walk(page.AST, func(n entities.Node) {
		dir, ok := n.(*entities.Directive)
		if !ok {
			return
		}
		if dir.Name == "devhub:author" {
			if v, ok := dir.Options["name"]; ok {
				fields["author"] = v.Raw
			}
			return
		}
		if blockSet[dir.Name] {
			fields[dir.Name] = strings.TrimSpace(dir.BlockText)
		}
		if listSet[dir.Name] {
			list, _ := fields[dir.Name].([]string)
			fields[dir.Name] = append(list, strings.TrimSpace(dir.BlockText))
		}
	})
	return fields
}

func toSet(list []string) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, v := range list {
		out[v] = true
	}
	return out
}
