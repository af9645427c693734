package entities

import (
	"encoding/gob"
	"encoding/json"
)

// init registers every concrete Node variant with encoding/gob so that a
// Page's AST (which holds Node through an interface-typed Children
// slice) can round-trip through the parse cache (spec.md §4.8).
func init() {
	gob.Register(&Text{})
	gob.Register(&Code{})
	gob.Register(&Transition{})
	gob.Register(&TargetIdentifier{})
	gob.Register(&Emphasis{})
	gob.Register(&Strong{})
	gob.Register(&Literal{})
	gob.Register(&Reference{})
	gob.Register(&RefRole{})
	gob.Register(&Role{})
	gob.Register(&SubstitutionReference{})
	gob.Register(&FootnoteReference{})
	gob.Register(&Paragraph{})
	gob.Register(&Section{})
	gob.Register(&Heading{})
	gob.Register(&ListNode{})
	gob.Register(&ListNodeItem{})
	gob.Register(&DefinitionList{})
	gob.Register(&DefinitionListItem{})
	gob.Register(&Line{})
	gob.Register(&LineBlock{})
	gob.Register(&Footnote{})
	gob.Register(&SubstitutionDefinition{})
	gob.Register(&Table{})
	gob.Register(&Directive{})
	gob.Register(&TocTreeDirective{})
	gob.Register(&DirectiveArgument{})
	gob.Register(&Target{})
	gob.Register(&Root{})
	gob.Register(&TargetRefTitle{})
}

// Node is the common interface satisfied by every AST variant. children
// of a Node are exclusively owned by it; Node values should never be
// shared between two parents.
type Node interface {
	// NodeType returns the tagged-variant discriminator serialized under
	// the "type" key (e.g. "paragraph", "code", "ref_role").
	NodeType() string
	// NodeSpan returns the source span this node occupies.
	NodeSpan() Span
}

// Parent is implemented by every Node variant that owns child nodes.
// Leaves (Text, Code, Transition, TargetIdentifier) do not implement it.
type Parent interface {
	Node
	NodeChildren() []Node
	SetNodeChildren([]Node)
}

// Base is embedded by every node variant to satisfy NodeSpan/NodeType
// plumbing without repeating the span field everywhere.
type Base struct {
	Span Span `json:"-"`
}

func (b Base) NodeSpan() Span { return b.Span }

// ParentBase additionally carries the children slice shared by every
// block/inline parent variant.
type ParentBase struct {
	Base
	Children []Node `json:"-"`
}

func (p *ParentBase) NodeChildren() []Node        { return p.Children }
func (p *ParentBase) SetNodeChildren(c []Node)    { p.Children = c }

// --- Leaves ---------------------------------------------------------------

type Text struct {
	Base
	Value string
}

func (n *Text) NodeType() string { return "text" }

type Code struct {
	Base
	Lang           string
	Copyable       bool
	EmphasizeLines [][2]int
	Value          string
}

func (n *Code) NodeType() string { return "code" }

type Transition struct{ Base }

func (n *Transition) NodeType() string { return "transition" }

type TargetIdentifier struct {
	Base
	Ids []string
}

func (n *TargetIdentifier) NodeType() string { return "target_identifier" }

// --- Inline parents ---------------------------------------------------------

type Emphasis struct{ ParentBase }

func (n *Emphasis) NodeType() string { return "emphasis" }

type Strong struct{ ParentBase }

func (n *Strong) NodeType() string { return "strong" }

type Literal struct{ ParentBase }

func (n *Literal) NodeType() string { return "literal" }

type Reference struct {
	ParentBase
	RefURI  string
	RefName string
}

func (n *Reference) NodeType() string { return "reference" }

// RefRole is a cross-reference role (:ref:, :doc:, domain-specific ref
// roles). Exactly one of FileId/URL is set once the postprocessor's
// handle_refs pass has run; both are nil beforehand.
type RefRole struct {
	ParentBase
	Domain string
	Name   string
	Target string
	Flag   string
	FileId *FileId
	URL    *string
}

func (n *RefRole) NodeType() string { return "ref_role" }

// Role is a plain (non-link, non-ref) interpreted-text role.
type Role struct {
	ParentBase
	Domain string
	Name   string
	Target string
	Flag   string
}

func (n *Role) NodeType() string { return "role" }

type SubstitutionReference struct {
	ParentBase
	Name string
}

func (n *SubstitutionReference) NodeType() string { return "substitution_reference" }

type FootnoteReference struct {
	ParentBase
	Id      string
	RefName *string
}

func (n *FootnoteReference) NodeType() string { return "footnote_reference" }

// --- Block parents ----------------------------------------------------------

type Paragraph struct{ ParentBase }

func (n *Paragraph) NodeType() string { return "paragraph" }

type Section struct{ ParentBase }

func (n *Section) NodeType() string { return "section" }

type Heading struct {
	ParentBase
	Id string
}

func (n *Heading) NodeType() string { return "heading" }

type ListNode struct {
	ParentBase
	Ordered bool
}

func (n *ListNode) NodeType() string { return "list" }

type ListNodeItem struct{ ParentBase }

func (n *ListNodeItem) NodeType() string { return "list_item" }

type DefinitionList struct{ ParentBase }

func (n *DefinitionList) NodeType() string { return "definition_list" }

type DefinitionListItem struct {
	ParentBase
	Term string
}

func (n *DefinitionListItem) NodeType() string { return "definition_list_item" }

type Line struct{ ParentBase }

func (n *Line) NodeType() string { return "line" }

type LineBlock struct{ ParentBase }

func (n *LineBlock) NodeType() string { return "line_block" }

type Footnote struct {
	ParentBase
	Id   string
	Name *string
}

func (n *Footnote) NodeType() string { return "footnote" }

type SubstitutionDefinition struct {
	ParentBase
	Name string
}

func (n *SubstitutionDefinition) NodeType() string { return "substitution_definition" }

type Table struct{ ParentBase }

func (n *Table) NodeType() string { return "table" }

// OptionValue is the typed result of validating a raw directive option
// string against the spec registry (spec.md §4.1).
type OptionValue struct {
	Raw  string
	Kind string // "integer" | "nonnegative_integer" | "path" | "uri" | "string" | "length" | "boolean" | "flag" | "linenos" | "enum"
	Bool bool
	Int  int
}

type Directive struct {
	ParentBase
	Domain    string
	Name      string
	Argument  []string
	Options   map[string]OptionValue
	BlockText string
}

func (n *Directive) NodeType() string { return "directive" }

// TocTreeEntry is one line of a toctree directive's resolved body.
type TocTreeEntry struct {
	Title    string
	Slug     string // set when the entry targets an internal slug
	URL      string // set when the entry targets an external URL
	IsURL    bool
}

type TocTreeDirective struct {
	ParentBase
	Entries []TocTreeEntry
}

func (n *TocTreeDirective) NodeType() string { return "toctree" }

type DirectiveArgument struct{ ParentBase }

func (n *DirectiveArgument) NodeType() string { return "directive_argument" }

type Target struct {
	ParentBase
	Domain string
	Name   string
	RefURI *string
}

func (n *Target) NodeType() string { return "target" }

// TargetRefTitle is appended as a Target's child by the postprocessor's
// add_titles_to_label_targets pass (spec.md §4.7 step 3), carrying a copy
// of the following section's heading content so ref resolution can show
// a title without re-walking the document.
type TargetRefTitle struct{ ParentBase }

func (n *TargetRefTitle) NodeType() string { return "target_ref_title" }

type Root struct {
	ParentBase
	Options map[string]any
	FileId  FileId
}

func (n *Root) NodeType() string { return "root" }

// --- Constructors -----------------------------------------------------------
//
// Every constructor seeds the span so callers never forget to attach
// source position, matching the invariant that every node carries a
// span with at least a start line.

func NewText(line int, value string) *Text { return &Text{Base: Base{Span: NewSpan(line)}, Value: value} }

func newParentBase(line int) ParentBase {
	return ParentBase{Base: Base{Span: NewSpan(line)}, Children: nil}
}

func NewParagraph(line int) *Paragraph { return &Paragraph{ParentBase: newParentBase(line)} }
func NewSection(line int) *Section     { return &Section{ParentBase: newParentBase(line)} }
func NewHeading(line int, id string) *Heading {
	return &Heading{ParentBase: newParentBase(line), Id: id}
}
func NewRoot(fileid FileId) *Root {
	return &Root{ParentBase: newParentBase(1), FileId: fileid, Options: map[string]any{}}
}

// --- Serialization -----------------------------------------------------------

// MarshalNode serializes a Node into its JSON-ish map keyed by "type",
// recursing into children for Parent nodes.
func MarshalNode(n Node) ([]byte, error) {
	m := nodeToMap(n)
	return json.Marshal(m)
}

func nodeToMap(n Node) map[string]any {
	m := map[string]any{
		"type": n.NodeType(),
		"position": map[string]any{
			"start": map[string]any{"line": n.NodeSpan().Start.Line},
		},
	}
	switch v := n.(type) {
	case *Text:
		m["value"] = v.Value
	case *Code:
		m["lang"] = v.Lang
		m["copyable"] = v.Copyable
		m["emphasize_lines"] = v.EmphasizeLines
		m["value"] = v.Value
	case *TargetIdentifier:
		m["ids"] = v.Ids
	case *Reference:
		m["refuri"] = v.RefURI
		m["refname"] = v.RefName
	case *RefRole:
		m["domain"] = v.Domain
		m["name"] = v.Name
		m["target"] = v.Target
		m["flag"] = v.Flag
		if v.FileId != nil {
			m["fileid"] = string(*v.FileId)
		}
		if v.URL != nil {
			m["url"] = *v.URL
		}
	case *Role:
		m["domain"] = v.Domain
		m["name"] = v.Name
		m["target"] = v.Target
		m["flag"] = v.Flag
	case *SubstitutionReference:
		m["name"] = v.Name
	case *FootnoteReference:
		m["id"] = v.Id
		if v.RefName != nil {
			m["refname"] = *v.RefName
		}
	case *Heading:
		m["id"] = v.Id
	case *ListNode:
		m["ordered"] = v.Ordered
	case *DefinitionListItem:
		m["term"] = v.Term
	case *Footnote:
		m["id"] = v.Id
		if v.Name != nil {
			m["name"] = *v.Name
		}
	case *SubstitutionDefinition:
		m["name"] = v.Name
	case *Directive:
		m["domain"] = v.Domain
		m["name"] = v.Name
		m["argument"] = v.Argument
		opts := map[string]any{}
		for k, ov := range v.Options {
			opts[k] = ov.Raw
		}
		m["options"] = opts
	case *TocTreeDirective:
		m["entries"] = v.Entries
	case *Target:
		m["domain"] = v.Domain
		m["name"] = v.Name
		if v.RefURI != nil {
			m["refuri"] = *v.RefURI
		}
	case *Root:
		m["options"] = v.Options
		m["fileid"] = string(v.FileId)
	}

	if p, ok := n.(Parent); ok {
		children := p.NodeChildren()
		childMaps := make([]map[string]any, 0, len(children))
		for _, c := range children {
			childMaps = append(childMaps, nodeToMap(c))
		}
		m["children"] = childMaps
	}
	return m
}

// CloneNode deep-copies n and, recursively, its children. Used wherever
// one page's AST nodes are grafted into another (postprocess's
// populate_include_nodes pass) so the "never shared between two
// parents" invariant above holds even after an include is expanded into
// multiple including pages.
func CloneNode(n Node) Node {
	if n == nil {
		return nil
	}
	var clone Node
	switch v := n.(type) {
	case *Text:
		c := *v
		clone = &c
	case *Code:
		c := *v
		c.EmphasizeLines = append([][2]int(nil), v.EmphasizeLines...)
		clone = &c
	case *Transition:
		c := *v
		clone = &c
	case *TargetIdentifier:
		c := *v
		c.Ids = append([]string(nil), v.Ids...)
		clone = &c
	case *Emphasis:
		c := *v
		clone = &c
	case *Strong:
		c := *v
		clone = &c
	case *Literal:
		c := *v
		clone = &c
	case *Reference:
		c := *v
		clone = &c
	case *RefRole:
		c := *v
		clone = &c
	case *Role:
		c := *v
		clone = &c
	case *SubstitutionReference:
		c := *v
		clone = &c
	case *FootnoteReference:
		c := *v
		clone = &c
	case *Paragraph:
		c := *v
		clone = &c
	case *Section:
		c := *v
		clone = &c
	case *Heading:
		c := *v
		clone = &c
	case *ListNode:
		c := *v
		clone = &c
	case *ListNodeItem:
		c := *v
		clone = &c
	case *DefinitionList:
		c := *v
		clone = &c
	case *DefinitionListItem:
		c := *v
		clone = &c
	case *Line:
		c := *v
		clone = &c
	case *LineBlock:
		c := *v
		clone = &c
	case *Footnote:
		c := *v
		clone = &c
	case *SubstitutionDefinition:
		c := *v
		clone = &c
	case *Table:
		c := *v
		clone = &c
	case *Directive:
		c := *v
		c.Argument = append([]string(nil), v.Argument...)
		opts := make(map[string]OptionValue, len(v.Options))
		for k, ov := range v.Options {
			opts[k] = ov
		}
		c.Options = opts
		clone = &c
	case *TocTreeDirective:
		c := *v
		c.Entries = append([]TocTreeEntry(nil), v.Entries...)
		clone = &c
	case *DirectiveArgument:
		c := *v
		clone = &c
	case *Target:
		c := *v
		clone = &c
	case *TargetRefTitle:
		c := *v
		clone = &c
	case *Root:
		c := *v
		opts := make(map[string]any, len(v.Options))
		for k, ov := range v.Options {
			opts[k] = ov
		}
		c.Options = opts
		clone = &c
	default:
		return n
	}

	if p, ok := clone.(Parent); ok {
		orig := n.(Parent)
		children := make([]Node, len(orig.NodeChildren()))
		for i, child := range orig.NodeChildren() {
			children[i] = CloneNode(child)
		}
		p.SetNodeChildren(children)
	}
	return clone
}

// CountNodes walks a node (and its children, if any) depth-first and
// returns the total node count, including n itself. Used by tests
// asserting structural invariants (spec.md §8 property 7's companion
// "every node reachable" sanity check).
func CountNodes(n Node) int {
	count := 1
	if p, ok := n.(Parent); ok {
		for _, c := range p.NodeChildren() {
			count += CountNodes(c)
		}
	}
	return count
}

