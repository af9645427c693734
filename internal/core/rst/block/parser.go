// Package block implements the reStructuredText block-level parser
// (spec.md §4.2, §4.3): the Body/Text/Line/Definition/BulletList/
// EnumeratedList/FieldList/OptionList/LineBlock/Explicit states layered
// on top of the generic statemachine.Machine cursor.
package block

import (
	"regexp"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/rst/directive"
	"github.com/madstone-tech/docpiler/internal/core/rst/inline"
	"github.com/madstone-tech/docpiler/internal/core/rst/statemachine"
	"github.com/madstone-tech/docpiler/internal/core/specdsl"
)

var (
	bulletRe       = regexp.MustCompile(`^([-*+])(\s+)(.*)$`)
	enumRe         = regexp.MustCompile(`^(\d+|[A-Za-z]|#)([.)])(\s+)(.*)$`)
	fieldRe        = regexp.MustCompile(`^:([^:\s][^:]*):(\s*)(.*)$`)
	lineBlockRe    = regexp.MustCompile(`^\|(?: (.*))?$`)
	explicitRe     = regexp.MustCompile(`^\.\.(?: (.*))?$`)
	directiveRe    = regexp.MustCompile(`^([\w:.-]+)::\s*(.*)$`)
	targetRe       = regexp.MustCompile(`^_([^:]+):\s*(.*)$`)
	footnoteDefRe  = regexp.MustCompile(`^\[(#[\w-]*|\*|\d+)\]\s+(.*)$`)
	substDefRe     = regexp.MustCompile(`^\|([^|]+)\|\s+([\w:.-]+)::\s*(.*)$`)
	punctRunRe     = regexp.MustCompile(`^([!-/:-@\[-` + "`" + `{-~])\1{3,}$`)
	optionMarkerRe = regexp.MustCompile(`^(-{1,2}[A-Za-z][\w-]*(?:[= ][^\s,]+)?(?:,\s*-{1,2}[A-Za-z][\w-]*(?:[= ][^\s,]+)?)*)(\s{2,})(.*)$`)
)

// Parser turns one source file's text into a fully populated Page
// (AST, pending tasks, static assets, diagnostics), per spec.md §4.2-§4.4.
type Parser struct {
	spec    *specdsl.Spec
	fileid  entities.FileId
	diags   entities.Diagnostics
	pending []entities.PendingTask
	assets  []*entities.StaticAsset

	// styleOrder records the order underline characters are first
	// observed in, per page (spec.md §4.2's "stack of observed title
	// styles"). It resets with every Parse call so section levels never
	// leak between files.
	styleOrder []byte
}

// NewParser constructs a Parser bound to one file's identity and the
// directive/role spec registry used to resolve directives and roles.
func NewParser(spec *specdsl.Spec, fileid entities.FileId) *Parser {
	return &Parser{spec: spec, fileid: fileid}
}

// Parse runs the full block+inline parse over source text and returns
// a populated Page. An empty source parses to a Root with no children
// and no diagnostics (spec.md §8 boundary behavior).
func (p *Parser) Parse(source string) *entities.Page {
	page := entities.NewPage(p.fileid, source)
	if strings.TrimSpace(source) == "" {
		return page
	}
	p.styleOrder = nil

	lines := statemachine.NewInput(string(p.fileid), source)
	m := statemachine.NewMachine(lines)
	flat := p.parseFlat(m)
	page.AST.SetNodeChildren(nestSections(flat))

	page.PendingTasks = p.pending
	assetSet := page.StaticAssets
	for _, a := range p.assets {
		assetSet.Add(a)
	}
	return page
}

// Diagnostics returns the diagnostics accumulated during the most
// recent Parse call.
func (p *Parser) Diagnostics() entities.Diagnostics { return p.diags }

// flatItem is one top-level block with its heading level (-1 when the
// item is not a Heading), used by nestSections to rebuild section
// nesting from the flat sequence the body state produces.
type flatItem struct {
	node  entities.Node
	level int
}

// parseFlat walks the machine at top level (indent 0) producing a flat
// sequence of blocks, matching Body's transitions in spec.md §4.2.
func (p *Parser) parseFlat(m *statemachine.Machine) []flatItem {
	var out []flatItem
	for {
		line, err := m.NextLine()
		if err != nil {
			break
		}
		trimmed := strings.TrimSpace(line.Text)
		if trimmed == "" {
			continue
		}

		switch {
		case bulletRe.MatchString(line.Text):
			m.PreviousLine(1)
			out = append(out, flatItem{node: p.parseBulletList(m), level: -1})

		case enumRe.MatchString(line.Text):
			m.PreviousLine(1)
			out = append(out, flatItem{node: p.parseEnumeratedList(m), level: -1})

		case fieldRe.MatchString(line.Text):
			m.PreviousLine(1)
			out = append(out, flatItem{node: p.parseFieldList(m), level: -1})

		case optionMarkerRe.MatchString(line.Text):
			m.PreviousLine(1)
			out = append(out, flatItem{node: p.parseOptionList(m), level: -1})

		case lineBlockRe.MatchString(line.Text):
			m.PreviousLine(1)
			out = append(out, flatItem{node: p.parseLineBlock(m), level: -1})

		case explicitRe.MatchString(line.Text):
			m.PreviousLine(1)
			items := p.parseExplicitMarkup(m)
			out = append(out, items...)

		case isPunctuationRun(line.Text):
			next, ok := m.Current()
			if ok && strings.TrimSpace(next.Text) != "" && !isPunctuationRun(next.Text) {
				// overline: consume title + underline as a heading.
				title := next
				m.NextLine()
				underline, hasUnderline := m.Current()
				heading := p.makeHeading(title)
				styleChar := line.Text[0]
				if hasUnderline && isPunctuationRun(underline.Text) {
					m.NextLine()
					styleChar = underline.Text[0]
					p.checkUnderlineWidth(title.Text, underline.Text, underline.Number)
				}
				out = append(out, flatItem{node: heading, level: p.sectionLevelKey(styleChar)})
				continue
			}
			out = append(out, flatItem{node: p.makeTransition(line), level: -1})

		default:
			out = append(out, p.parseTextBlock(m, line)...)
		}
	}
	return out
}

// checkUnderlineWidth warns when an underline's visual width (East
// Asian wide/fullwidth runes count as 2, per uniseg) is shorter than
// the title's, per spec.md §8's boundary behavior.
func (p *Parser) checkUnderlineWidth(title, underline string, line int) {
	titleWidth := uniseg.StringWidth(strings.TrimSpace(title))
	underlineWidth := uniseg.StringWidth(strings.TrimSpace(underline))
	if underlineWidth < titleWidth {
		p.diags = append(p.diags, entities.Warningf(entities.KindShortTitleUnderline, line,
			"title underline is too short: title is %d columns wide, underline is %d", titleWidth, underlineWidth))
	}
}

func isPunctuationRun(s string) bool {
	t := strings.TrimSpace(s)
	return len(t) >= 4 && punctRunRe.MatchString(t)
}

// sectionLevelKey maps an underline character to its 1-based section
// depth, assigning the next depth the first time a character is seen.
func (p *Parser) sectionLevelKey(ch byte) int {
	for i, c := range p.styleOrder {
		if c == ch {
			return i + 1
		}
	}
	p.styleOrder = append(p.styleOrder, ch)
	return len(p.styleOrder)
}

func (p *Parser) makeHeading(line statemachine.SourceLine) *entities.Heading {
	h := entities.NewHeading(line.Number, "")
	children, diags := inline.Parse(strings.TrimSpace(line.Text), line.Number, p.spec)
	h.SetNodeChildren(children)
	p.diags = append(p.diags, diags...)
	return h
}

func (p *Parser) makeTransition(line statemachine.SourceLine) *entities.Transition {
	t := &entities.Transition{}
	t.Span = entities.NewSpan(line.Number)
	return t
}

// parseTextBlock handles Body.text -> Text state: the line beginning a
// paragraph, possibly followed by a section underline (-> heading) or
// an indented continuation (-> definition list item).
func (p *Parser) parseTextBlock(m *statemachine.Machine, first statemachine.SourceLine) []flatItem {
	textLines := []string{first.Text}
	startLine := first.Number

	for {
		cur, ok := m.Current()
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(cur.Text)
		if trimmed == "" {
			break
		}
		if isPunctuationRun(cur.Text) && len(textLines) == 1 {
			// underline-only title (no overline).
			m.NextLine()
			heading := p.makeHeadingFromText(textLines, startLine)
			p.checkUnderlineWidth(textLines[0], cur.Text, cur.Number)
			return []flatItem{{node: heading, level: p.sectionLevelKey(cur.Text[0])}}
		}
		indent := len(cur.Text) - len(strings.TrimLeft(cur.Text, " "))
		if indent > 0 && len(textLines) >= 1 {
			// indentation after a text line: treat as a definition list.
			return []flatItem{{node: p.parseDefinitionList(m, textLines, startLine), level: -1}}
		}
		textLines = append(textLines, cur.Text)
		m.NextLine()
	}

	if strings.HasSuffix(strings.TrimRight(textLines[len(textLines)-1], " "), "::") {
		// literal block introducer: following indented block becomes Code.
		blank, _ := m.Current()
		if blank.Text == "" {
			m.NextLine()
		}
		lit, _, _ := m.GetIndented(-1, -1, false, true)
		para := p.makeParagraph(stripTrailingDoubleColon(textLines), startLine)
		if len(lit) > 0 {
			code := &entities.Code{Value: strings.Join(lit, "\n")}
			code.Span = entities.NewSpan(startLine)
			return []flatItem{{node: para, level: -1}, {node: code, level: -1}}
		}
		return []flatItem{{node: para, level: -1}}
	}

	return []flatItem{{node: p.makeParagraph(textLines, startLine), level: -1}}
}

func stripTrailingDoubleColon(lines []string) []string {
	out := append([]string(nil), lines...)
	last := out[len(out)-1]
	last = strings.TrimSuffix(strings.TrimRight(last, " "), "::")
	out[len(out)-1] = strings.TrimRight(last, " ") + "."
	if strings.HasSuffix(out[len(out)-1], " .") {
		out[len(out)-1] = strings.TrimSuffix(out[len(out)-1], " .")
	}
	return out
}

func (p *Parser) makeParagraph(lines []string, startLine int) *entities.Paragraph {
	para := entities.NewParagraph(startLine)
	text := strings.Join(lines, " ")
	children, diags := inline.Parse(text, startLine, p.spec)
	para.SetNodeChildren(children)
	p.diags = append(p.diags, diags...)
	return para
}

func (p *Parser) makeHeadingFromText(lines []string, startLine int) *entities.Heading {
	h := entities.NewHeading(startLine, "")
	children, diags := inline.Parse(strings.Join(lines, " "), startLine, p.spec)
	h.SetNodeChildren(children)
	p.diags = append(p.diags, diags...)
	return h
}

// parseChildrenCallback adapts Parser into the function value the
// directive package expects for recursive content parsing.
func (p *Parser) parseChildrenCallback() func(lines []string, startLine int) []entities.Node {
	return func(lines []string, startLine int) []entities.Node {
		text := strings.Join(lines, "\n")
		if strings.TrimSpace(text) == "" {
			return nil
		}
		src := statemachine.NewInput(string(p.fileid), text)
		for i := range src {
			src[i].Number = startLine + i
		}
		sub := statemachine.NewMachine(src)
		flat := p.parseFlat(sub)
		result := make([]entities.Node, 0, len(flat))
		for _, item := range flat {
			result = append(result, item.node)
		}
		return result
	}
}

// nestSections rebuilds a Section tree from the flat block sequence,
// using each Heading's recorded level (spec.md §4.2's title-style
// stack). Non-heading top-level blocks (before the first heading)
// remain direct children of Root.
func nestSections(flat []flatItem) []entities.Node {
	type frame struct {
		level   int
		section *entities.Section
	}
	var stack []frame
	var roots []entities.Node

	for _, item := range flat {
		if item.level < 0 {
			if len(stack) == 0 {
				roots = append(roots, item.node)
			} else {
				top := &stack[len(stack)-1]
				top.section.SetNodeChildren(append(top.section.NodeChildren(), item.node))
			}
			continue
		}

		for len(stack) > 0 && stack[len(stack)-1].level >= item.level {
			stack = stack[:len(stack)-1]
		}

		sec := entities.NewSection(item.node.NodeSpan().StartLine())
		sec.SetNodeChildren([]entities.Node{item.node})

		if len(stack) == 0 {
			roots = append(roots, sec)
		} else {
			top := &stack[len(stack)-1]
			top.section.SetNodeChildren(append(top.section.NodeChildren(), sec))
		}
		stack = append(stack, frame{level: item.level, section: sec})
	}
	return roots
}

// dispatchDirective builds a directive.Context from parsed raw pieces
// and invokes directive.Dispatch, collecting its side effects.
func (p *Parser) dispatchDirective(domain, name string, argument []string, options map[string]string, content []string, contentOffset int, blockText string, line int) entities.Node {
	ctx := directive.Context{
		Spec:          p.spec,
		Domain:        domain,
		Name:          name,
		Argument:      argument,
		Options:       options,
		ContentLines:  content,
		ContentOffset: contentOffset,
		BlockText:     blockText,
		Line:          line,
		FileId:        p.fileid,
		ParseChildren: p.parseChildrenCallback(),
	}
	res := directive.Dispatch(ctx)
	p.diags = append(p.diags, res.Diags...)
	p.pending = append(p.pending, res.Pending...)
	p.assets = append(p.assets, res.Assets...)
	return res.Node
}
