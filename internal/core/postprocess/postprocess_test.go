package postprocess

import (
	"context"
	"testing"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/target"
)

func newTestPage(fileid entities.FileId, children ...entities.Node) *entities.Page {
	page := entities.NewPage(fileid, string(fileid))
	page.AST.SetNodeChildren(children)
	return page
}

func heading(line int, text string) *entities.Heading {
	h := entities.NewHeading(line, "")
	h.SetNodeChildren([]entities.Node{entities.NewText(line, text)})
	return h
}

func TestBuildSlugTitleMapping(t *testing.T) {
	pages := map[entities.FileId]*entities.Page{
		"intro.txt": newTestPage("intro.txt", heading(1, "Introduction")),
	}
	pp := New(target.NewDatabase(), entities.DefaultProjectConfig())
	meta, _, _ := pp.Run(context.Background(), pages)
	if meta.Title["intro"] != "Introduction" {
		t.Fatalf("Title[intro] = %q", meta.Title["intro"])
	}
}

func TestPopulateIncludeNodesSplicesTargetPageChildren(t *testing.T) {
	included := newTestPage("shared/note.txt", heading(1, "Shared note"))
	includeDir := &entities.Directive{Name: "include", Argument: []string{"/shared/note.txt"}}
	includeDir.Span = entities.NewSpan(1)
	main := newTestPage("index.txt", includeDir)

	pages := map[entities.FileId]*entities.Page{
		"index.txt":        main,
		"shared/note.txt": included,
	}
	pp := New(target.NewDatabase(), entities.DefaultProjectConfig())
	pp.Run(context.Background(), pages)

	if len(includeDir.NodeChildren()) != 1 {
		t.Fatalf("expected include directive to gain 1 child, got %d", len(includeDir.NodeChildren()))
	}
	if _, ok := main.Dependencies["shared/note.txt"]; !ok {
		t.Fatal("expected include to record a page dependency")
	}
	// mutating the clone must not affect the original page's AST
	includeDir.NodeChildren()[0].(*entities.Heading).SetNodeChildren(nil)
	if len(included.AST.NodeChildren()[0].(*entities.Heading).NodeChildren()) == 0 {
		t.Fatal("include clone shared node identity with source page")
	}
}

func TestHandleRefsInjectsTitleOnHit(t *testing.T) {
	tgt := &entities.Target{Domain: "std", Name: "widget-setup"}
	tgt.Span = entities.NewSpan(1)
	page1 := newTestPage("setup.txt", tgt, heading(2, "Widget Setup"))

	ref := &entities.RefRole{Domain: "std", Name: "label", Target: "widget-setup"}
	ref.Span = entities.NewSpan(1)
	page2 := newTestPage("other.txt", ref)

	pages := map[entities.FileId]*entities.Page{
		"setup.txt": page1,
		"other.txt": page2,
	}
	pp := New(target.NewDatabase(), entities.DefaultProjectConfig())
	_, diags, _ := pp.Run(context.Background(), pages)
	if len(diags["other.txt"]) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags["other.txt"])
	}
	if ref.FileId == nil || *ref.FileId != "setup.txt" {
		t.Fatalf("expected ref.FileId = setup.txt, got %v", ref.FileId)
	}
}

func TestHandleRefsReportsTargetNotFound(t *testing.T) {
	ref := &entities.RefRole{Domain: "std", Name: "label", Target: "missing"}
	ref.Span = entities.NewSpan(3)
	pages := map[entities.FileId]*entities.Page{
		"page.txt": newTestPage("page.txt", ref),
	}
	pp := New(target.NewDatabase(), entities.DefaultProjectConfig())
	_, diags, _ := pp.Run(context.Background(), pages)
	if len(diags["page.txt"]) != 1 || diags["page.txt"][0].Kind != entities.KindTargetNotFound {
		t.Fatalf("expected TargetNotFound, got %v", diags["page.txt"])
	}
}

func TestAddTitlesToLabelTargetsAttachesFollowingSectionHeading(t *testing.T) {
	tgt := &entities.Target{Domain: "std", Name: "sec-ref"}
	tgt.Span = entities.NewSpan(1)
	sec := entities.NewSection(2)
	sec.SetNodeChildren([]entities.Node{heading(2, "A Section")})

	root := entities.NewRoot("page.txt")
	root.SetNodeChildren([]entities.Node{tgt, sec})

	addTitlesToLabelTargets(root)

	if len(tgt.NodeChildren()) != 1 {
		t.Fatalf("expected target to gain a target_ref_title child, got %d", len(tgt.NodeChildren()))
	}
	title, ok := tgt.NodeChildren()[0].(*entities.TargetRefTitle)
	if !ok {
		t.Fatalf("expected TargetRefTitle, got %#v", tgt.NodeChildren()[0])
	}
	var text string
	walk(title, func(n entities.Node) {
		if t, ok := n.(*entities.Text); ok {
			text += t.Value
		}
	})
	if text != "A Section" {
		t.Fatalf("unexpected title text %q", text)
	}
}

func TestBuildToctreeWalksFromContentsAndComputesOrderAndBreadcrumbs(t *testing.T) {
	leaf := newTestPage("topics/widgets.txt", heading(1, "Widgets"))
	intro := newTestPage("intro.txt", heading(1, "Intro"),
		tocTree([]entities.TocTreeEntry{{Title: "Widgets", Slug: "topics/widgets"}}))
	contents := newTestPage("contents.txt",
		tocTree([]entities.TocTreeEntry{{Title: "Intro", Slug: "intro"}}))

	pages := map[entities.FileId]*entities.Page{
		"contents.txt":      contents,
		"intro.txt":         intro,
		"topics/widgets.txt": leaf,
	}
	pp := New(target.NewDatabase(), entities.DefaultProjectConfig())
	meta, _, _ := pp.Run(context.Background(), pages)

	if len(meta.Toctree) != 1 || meta.Toctree[0].Slug != "intro" {
		t.Fatalf("Toctree = %+v", meta.Toctree)
	}
	if len(meta.Toctree[0].Children) != 1 || meta.Toctree[0].Children[0].Slug != "topics/widgets" {
		t.Fatalf("Toctree children = %+v", meta.Toctree[0].Children)
	}
	if len(meta.ToctreeOrder) != 2 || meta.ToctreeOrder[0] != "intro" || meta.ToctreeOrder[1] != "topics/widgets" {
		t.Fatalf("ToctreeOrder = %v", meta.ToctreeOrder)
	}
	if len(meta.ParentPaths["topics/widgets"]) != 1 || meta.ParentPaths["topics/widgets"][0] != "intro" {
		t.Fatalf("ParentPaths[topics/widgets] = %v", meta.ParentPaths["topics/widgets"])
	}
}

func tocTree(entries []entities.TocTreeEntry) *entities.TocTreeDirective {
	tt := &entities.TocTreeDirective{Entries: entries}
	tt.Span = entities.NewSpan(1)
	return tt
}

func TestSubstitutionsResolveAndReportUnknown(t *testing.T) {
	def := &entities.SubstitutionDefinition{Name: "product"}
	def.Span = entities.NewSpan(1)
	def.SetNodeChildren([]entities.Node{entities.NewText(1, "Acme Widget")})

	known := &entities.SubstitutionReference{Name: "product"}
	known.Span = entities.NewSpan(2)
	unknown := &entities.SubstitutionReference{Name: "missing"}
	unknown.Span = entities.NewSpan(3)

	page := newTestPage("page.txt", def, known, unknown)
	pages := map[entities.FileId]*entities.Page{"page.txt": page}

	pp := New(target.NewDatabase(), entities.DefaultProjectConfig())
	_, diags, _ := pp.Run(context.Background(), pages)

	if len(known.NodeChildren()) != 1 || known.NodeChildren()[0].(*entities.Text).Value != "Acme Widget" {
		t.Fatalf("known substitution not resolved: %+v", known.NodeChildren())
	}
	found := false
	for _, d := range diags["page.txt"] {
		if d.Kind == entities.KindUnknownSubstitution {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected UnknownSubstitution diagnostic, got %v", diags["page.txt"])
	}
}

func TestSubstitutionCycleReportsSubstitutionRefError(t *testing.T) {
	a := &entities.SubstitutionDefinition{Name: "a"}
	a.SetNodeChildren([]entities.Node{&entities.SubstitutionReference{Name: "b"}})
	b := &entities.SubstitutionDefinition{Name: "b"}
	b.SetNodeChildren([]entities.Node{&entities.SubstitutionReference{Name: "a"}})
	ref := &entities.SubstitutionReference{Name: "a"}
	ref.Span = entities.NewSpan(1)

	page := newTestPage("page.txt", a, b, ref)
	pages := map[entities.FileId]*entities.Page{"page.txt": page}

	pp := New(target.NewDatabase(), entities.DefaultProjectConfig())
	_, diags, _ := pp.Run(context.Background(), pages)

	found := false
	for _, d := range diags["page.txt"] {
		if d.Kind == entities.KindSubstitutionRefError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SubstitutionRefError, got %v", diags["page.txt"])
	}
}
