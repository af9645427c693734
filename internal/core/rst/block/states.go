package block

import (
	"strings"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/rst/inline"
	"github.com/madstone-tech/docpiler/internal/core/rst/statemachine"
)

// parseBulletList implements the BulletList state: a run of items
// sharing the same bullet character, each a marker followed by an
// indented body parsed recursively as nested blocks.
func (p *Parser) parseBulletList(m *statemachine.Machine) *entities.ListNode {
	first, _ := m.Current()
	bulletChar := strings.TrimSpace(first.Text)[0]
	list := &entities.ListNode{Ordered: false}
	list.Span = entities.NewSpan(first.Number)

	for {
		line, ok := m.Current()
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(line.Text)
		if trimmed == "" {
			m.NextLine()
			continue
		}
		match := bulletRe.FindStringSubmatch(line.Text)
		if match == nil || match[1][0] != bulletChar {
			break
		}
		markerWidth := len(match[1]) + len(match[2])
		m.NextLine()
		body, _, _ := m.GetIndented(-1, markerWidth, false, true)
		firstLine := match[3]
		if firstLine != "" {
			body = append([]string{firstLine}, body...)
		}
		item := &entities.ListNodeItem{}
		item.Span = entities.NewSpan(line.Number)
		item.SetNodeChildren(p.parseChildrenCallback()(body, line.Number))
		list.SetNodeChildren(append(list.Children, item))
	}
	return list
}

// parseEnumeratedList implements the EnumeratedList state, mirroring
// parseBulletList but for numbered/lettered markers.
func (p *Parser) parseEnumeratedList(m *statemachine.Machine) *entities.ListNode {
	first, _ := m.Current()
	list := &entities.ListNode{Ordered: true}
	list.Span = entities.NewSpan(first.Number)

	for {
		line, ok := m.Current()
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(line.Text)
		if trimmed == "" {
			m.NextLine()
			continue
		}
		match := enumRe.FindStringSubmatch(line.Text)
		if match == nil {
			break
		}
		markerWidth := len(match[1]) + len(match[2]) + len(match[3])
		m.NextLine()
		body, _, _ := m.GetIndented(-1, markerWidth, false, true)
		firstLine := match[4]
		if firstLine != "" {
			body = append([]string{firstLine}, body...)
		}
		item := &entities.ListNodeItem{}
		item.Span = entities.NewSpan(line.Number)
		item.SetNodeChildren(p.parseChildrenCallback()(body, line.Number))
		list.SetNodeChildren(append(list.Children, item))
	}
	return list
}

// parseFieldList implements the FieldList state: `:name: value` pairs,
// represented as a DefinitionList whose term is the field name.
func (p *Parser) parseFieldList(m *statemachine.Machine) *entities.DefinitionList {
	first, _ := m.Current()
	dl := &entities.DefinitionList{}
	dl.Span = entities.NewSpan(first.Number)

	for {
		line, ok := m.Current()
		if !ok {
			break
		}
		if strings.TrimSpace(line.Text) == "" {
			m.NextLine()
			continue
		}
		match := fieldRe.FindStringSubmatch(line.Text)
		if match == nil {
			break
		}
		markerWidth := len(line.Text) - len(strings.TrimLeft(line.Text, " "))
		markerWidth += len(match[1]) + 2 + len(match[2])
		m.NextLine()
		body, _, _ := m.GetIndented(-1, markerWidth, false, true)
		firstLine := match[3]
		if firstLine != "" {
			body = append([]string{firstLine}, body...)
		}
		item := &entities.DefinitionListItem{Term: match[1]}
		item.Span = entities.NewSpan(line.Number)
		item.SetNodeChildren(p.parseChildrenCallback()(body, line.Number))
		dl.SetNodeChildren(append(dl.Children, item))
	}
	return dl
}

// parseOptionList implements the OptionList state: a CLI-option synopsis
// column followed by a two-space-separated description, represented the
// same shape as a field list (option synopsis as term).
func (p *Parser) parseOptionList(m *statemachine.Machine) *entities.DefinitionList {
	first, _ := m.Current()
	dl := &entities.DefinitionList{}
	dl.Span = entities.NewSpan(first.Number)

	for {
		line, ok := m.Current()
		if !ok {
			break
		}
		if strings.TrimSpace(line.Text) == "" {
			m.NextLine()
			continue
		}
		match := optionMarkerRe.FindStringSubmatch(line.Text)
		if match == nil {
			break
		}
		markerWidth := len(match[1]) + len(match[2])
		m.NextLine()
		body, _, _ := m.GetIndented(-1, markerWidth, false, true)
		if match[3] != "" {
			body = append([]string{match[3]}, body...)
		}
		item := &entities.DefinitionListItem{Term: match[1]}
		item.Span = entities.NewSpan(line.Number)
		item.SetNodeChildren(p.parseChildrenCallback()(body, line.Number))
		dl.SetNodeChildren(append(dl.Children, item))
	}
	return dl
}

// parseLineBlock implements the LineBlock state: consecutive `| text`
// lines, each becoming one Line child, preserving source line breaks.
func (p *Parser) parseLineBlock(m *statemachine.Machine) *entities.LineBlock {
	first, _ := m.Current()
	lb := &entities.LineBlock{}
	lb.Span = entities.NewSpan(first.Number)

	for {
		line, ok := m.Current()
		if !ok {
			break
		}
		match := lineBlockRe.FindStringSubmatch(line.Text)
		if match == nil {
			break
		}
		m.NextLine()
		ln := &entities.Line{}
		ln.Span = entities.NewSpan(line.Number)
		if match[1] != "" {
			children, diags := inline.Parse(match[1], line.Number, p.spec)
			ln.SetNodeChildren(children)
			p.diags = append(p.diags, diags...)
		}
		lb.SetNodeChildren(append(lb.Children, ln))
	}
	return lb
}

// parseDefinitionList implements the Definition state: the term lines
// already consumed by the caller, followed by one indented definition
// body.
func (p *Parser) parseDefinitionList(m *statemachine.Machine, termLines []string, startLine int) *entities.DefinitionList {
	dl := &entities.DefinitionList{}
	dl.Span = entities.NewSpan(startLine)

	body, _, _ := m.GetIndented(-1, -1, false, true)
	item := &entities.DefinitionListItem{Term: strings.Join(termLines, " ")}
	item.Span = entities.NewSpan(startLine)
	item.SetNodeChildren(p.parseChildrenCallback()(body, startLine+len(termLines)))
	dl.SetNodeChildren([]entities.Node{item})
	return dl
}

// parseExplicitMarkup implements the Explicit state (`.. `-introduced
// constructs): directives, hyperlink targets, footnote/citation
// definitions, substitution definitions, and comments.
func (p *Parser) parseExplicitMarkup(m *statemachine.Machine) []flatItem {
	marker, _ := m.Current()
	match := explicitRe.FindStringSubmatch(marker.Text)
	rest := ""
	if len(match) > 1 {
		rest = match[1]
	}
	m.NextLine()

	indent := len(marker.Text) - len(strings.TrimLeft(marker.Text, " ")) + 3
	body, _, _ := m.GetIndented(-1, indent, false, true)
	if rest != "" {
		body = append([]string{rest}, body...)
	}
	blockText := strings.Join(body, "\n")
	firstLine := ""
	if len(body) > 0 {
		firstLine = body[0]
	}

	if m := substDefRe.FindStringSubmatch(firstLine); m != nil {
		name, dirName, dirRest := m[1], m[2], m[3]
		content := append([]string{dirRest}, body[1:]...)
		node := p.buildSubstitutionDefinition(name, dirName, content, marker.Number)
		return []flatItem{{node: node, level: -1}}
	}
	if m := targetRe.FindStringSubmatch(firstLine); m != nil {
		node := p.buildTarget(m[1], m[2], marker.Number)
		return []flatItem{{node: node, level: -1}}
	}
	if m := footnoteDefRe.FindStringSubmatch(firstLine); m != nil {
		content := append([]string{m[2]}, body[1:]...)
		node := p.buildFootnote(m[1], content, marker.Number)
		return []flatItem{{node: node, level: -1}}
	}
	if m := directiveRe.FindStringSubmatch(firstLine); m != nil {
		domain, name := splitDirectiveDomain(m[1])
		argument := []string{}
		if strings.TrimSpace(m[2]) != "" {
			argument = []string{strings.TrimSpace(m[2])}
		}
		options, contentLines, contentOffset := splitOptionsFromContent(body[1:], marker.Number+1)
		node := p.dispatchDirective(domain, name, argument, options, contentLines, contentOffset, blockText, marker.Number)
		if node == nil {
			return nil
		}
		return []flatItem{{node: node, level: -1}}
	}
	// anything else under ".. " with no recognized shape is a comment: dropped.
	return nil
}

func splitDirectiveDomain(name string) (domain, bare string) {
	if idx := strings.Index(name, ":"); idx >= 0 && idx < len(name)-1 {
		return name[:idx], name[idx+1:]
	}
	return "", name
}

// splitOptionsFromContent peels leading `:option: value` lines off a
// directive's body, returning the parsed options plus the remaining
// content lines (after a required blank separator line, if present).
func splitOptionsFromContent(lines []string, startLine int) (map[string]string, []string, int) {
	options := map[string]string{}
	i := 0
	for i < len(lines) {
		m := fieldRe.FindStringSubmatch(lines[i])
		if m == nil {
			break
		}
		options[m[1]] = strings.TrimSpace(m[2] + m[3])
		i++
	}
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	return options, lines[i:], startLine + i
}

func (p *Parser) buildTarget(name, refuri string, line int) *entities.Target {
	t := &entities.Target{Name: name}
	t.Span = entities.NewSpan(line)
	if strings.TrimSpace(refuri) != "" {
		v := strings.TrimSpace(refuri)
		t.RefURI = &v
	}
	return t
}

func (p *Parser) buildFootnote(id string, content []string, line int) *entities.Footnote {
	fn := &entities.Footnote{Id: id}
	fn.Span = entities.NewSpan(line)
	fn.SetNodeChildren(p.parseChildrenCallback()(content, line))
	return fn
}

func (p *Parser) buildSubstitutionDefinition(name, dirName string, content []string, line int) *entities.SubstitutionDefinition {
	sd := &entities.SubstitutionDefinition{Name: name}
	sd.Span = entities.NewSpan(line)
	argument := []string{}
	sd.SetNodeChildren([]entities.Node{p.dispatchDirective("", dirName, argument, map[string]string{}, content, line, strings.Join(content, "\n"), line)})
	return sd
}
