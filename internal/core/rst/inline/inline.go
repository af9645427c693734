// Package inline implements the reStructuredText inline-markup
// recognizer (spec.md §4.3): emphasis, strong, literal, references,
// roles, substitution references, footnote references, and standalone
// URIs, scanned left to right over already-escaped text.
package inline

import (
	"regexp"
	"strings"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/specdsl"
)

var (
	strongRe    = regexp.MustCompile(`^\*\*([^*\s](?:[^*]*[^*\s])?)\*\*`)
	emphasisRe  = regexp.MustCompile(`^\*([^*\s](?:[^*]*[^*\s])?)\*`)
	literalRe   = regexp.MustCompile("^``([^`]+?)``")
	roleRe      = regexp.MustCompile("^:([\\w][\\w:-]*):`([^`]*)`")
	phraseRe    = regexp.MustCompile("^`([^`]*)`(__|_)?")
	substRe     = regexp.MustCompile(`^\|([^|]+?)\|(__|_)?`)
	footnoteRe  = regexp.MustCompile(`^\[(#[\w-]*|\*|\d+)\]_`)
	simpleRefRe = regexp.MustCompile(`^([A-Za-z][\w.+-]*[A-Za-z0-9])(__|_)\b`)
	urlRe       = regexp.MustCompile(`^(https?|ftp)://[^\s<>\]\)]+[^\s<>\]\),.]`)
	phraseURLRe = regexp.MustCompile(`^(.*)<([^<>]+)>$`)
)

// match describes one recognized inline span starting at position 0 of
// the remaining text.
type match struct {
	length int
	build  func(line int) entities.Node
}

// Parse recognizes inline markup in text (the content of one paragraph,
// line, or other text-bearing node) and returns the resulting inline
// node sequence plus any diagnostics raised along the way. spec is
// used to resolve role names to their declared RoleKind; it may be nil,
// in which case every role is treated as RoleText.
func Parse(text string, line int, spec *specdsl.Spec) ([]entities.Node, entities.Diagnostics) {
	var nodes []entities.Node
	var diags entities.Diagnostics
	var textBuf strings.Builder

	flush := func() {
		if textBuf.Len() > 0 {
			nodes = append(nodes, entities.NewText(line, textBuf.String()))
			textBuf.Reset()
		}
	}

	remaining := text
	for len(remaining) > 0 {
		m, d := nextMatch(remaining, spec, line)
		if d != nil {
			diags = append(diags, d)
		}
		if m == nil {
			r := []rune(remaining)
			textBuf.WriteRune(r[0])
			remaining = string(r[1:])
			continue
		}
		flush()
		nodes = append(nodes, m.build(line))
		remaining = remaining[m.length:]
	}
	flush()
	return nodes, diags
}

func nextMatch(s string, spec *specdsl.Spec, line int) (*match, *entities.Diagnostic) {
	if loc := strongRe.FindStringSubmatchIndex(s); loc != nil {
		inner := s[loc[2]:loc[3]]
		return &match{length: loc[1], build: func(line int) entities.Node {
			n := &entities.Strong{}
			n.Span = entities.NewSpan(line)
			children, _ := Parse(inner, line, spec)
			n.SetNodeChildren(children)
			return n
		}}, nil
	}
	if loc := literalRe.FindStringSubmatchIndex(s); loc != nil {
		inner := s[loc[2]:loc[3]]
		return &match{length: loc[1], build: func(line int) entities.Node {
			n := &entities.Literal{}
			n.Span = entities.NewSpan(line)
			n.SetNodeChildren([]entities.Node{entities.NewText(line, inner)})
			return n
		}}, nil
	}
	if loc := emphasisRe.FindStringSubmatchIndex(s); loc != nil {
		inner := s[loc[2]:loc[3]]
		return &match{length: loc[1], build: func(line int) entities.Node {
			n := &entities.Emphasis{}
			n.Span = entities.NewSpan(line)
			children, _ := Parse(inner, line, spec)
			n.SetNodeChildren(children)
			return n
		}}, nil
	}
	if loc := roleRe.FindStringSubmatchIndex(s); loc != nil {
		name := s[loc[2]:loc[3]]
		body := s[loc[4]:loc[5]]
		return &match{length: loc[1], build: func(line int) entities.Node {
			return buildRole(name, body, line, spec)
		}}, nil
	}
	if loc := footnoteRe.FindStringSubmatchIndex(s); loc != nil {
		id := s[loc[2]:loc[3]]
		return &match{length: loc[1], build: func(line int) entities.Node {
			n := &entities.FootnoteReference{Id: id}
			n.Span = entities.NewSpan(line)
			return n
		}}, nil
	}
	if loc := substRe.FindStringSubmatchIndex(s); loc != nil {
		name := s[loc[2]:loc[3]]
		return &match{length: loc[1], build: func(line int) entities.Node {
			n := &entities.SubstitutionReference{Name: name}
			n.Span = entities.NewSpan(line)
			return n
		}}, nil
	}
	if loc := simpleRefRe.FindStringSubmatchIndex(s); loc != nil {
		name := s[loc[2]:loc[3]]
		return &match{length: loc[1], build: func(line int) entities.Node {
			n := &entities.Reference{RefName: name}
			n.Span = entities.NewSpan(line)
			n.SetNodeChildren([]entities.Node{entities.NewText(line, name)})
			return n
		}}, nil
	}
	if loc := urlRe.FindStringIndex(s); loc != nil && loc[0] == 0 {
		uri := s[loc[0]:loc[1]]
		return &match{length: loc[1], build: func(line int) entities.Node {
			n := &entities.Reference{RefURI: uri}
			n.Span = entities.NewSpan(line)
			n.SetNodeChildren([]entities.Node{entities.NewText(line, uri)})
			return n
		}}, nil
	}
	if loc := phraseRe.FindStringSubmatchIndex(s); loc != nil {
		inner := s[loc[2]:loc[3]]
		suffix := ""
		if loc[4] >= 0 {
			suffix = s[loc[4]:loc[5]]
		}
		return &match{length: loc[1], build: func(line int) entities.Node {
			return buildPhrase(inner, suffix, line)
		}}, nil
	}
	return nil, nil
}

// buildRole dispatches :name:`text` per spec.md §4.4's four RoleKinds.
func buildRole(name, body string, line int, spec *specdsl.Spec) entities.Node {
	domain, roleName := splitDomain(name)
	kind := specdsl.RoleText
	var roleSpec *specdsl.RoleSpec
	if spec != nil {
		if r, _, ok := spec.LookupRole(domain, roleName); ok {
			roleSpec = r
			kind = r.Kind
		}
	}

	switch kind {
	case specdsl.RoleRef:
		target := body
		flag := ""
		if len(target) > 0 && (target[0] == '~' || target[0] == '!') {
			flag = target[:1]
			target = target[1:]
		}
		refDomain := domain
		if roleSpec != nil && roleSpec.RefDomain != "" {
			refDomain = roleSpec.RefDomain
		}
		n := &entities.RefRole{Domain: refDomain, Name: roleName, Target: target, Flag: flag}
		n.Span = entities.NewSpan(line)
		return n
	case specdsl.RoleLink:
		n := &entities.Role{Domain: domain, Name: roleName, Target: body}
		n.Span = entities.NewSpan(line)
		n.SetNodeChildren([]entities.Node{entities.NewText(line, body)})
		return n
	case specdsl.RoleExplicitTitle:
		if m := phraseURLRe.FindStringSubmatch(body); m != nil {
			n := &entities.Reference{RefURI: strings.TrimSpace(m[2])}
			n.Span = entities.NewSpan(line)
			n.SetNodeChildren([]entities.Node{entities.NewText(line, strings.TrimSpace(m[1]))})
			return n
		}
		n := &entities.Role{Domain: domain, Name: roleName, Target: body}
		n.Span = entities.NewSpan(line)
		n.SetNodeChildren([]entities.Node{entities.NewText(line, body)})
		return n
	default: // RoleText
		n := &entities.Role{Domain: domain, Name: roleName, Target: body}
		n.Span = entities.NewSpan(line)
		n.SetNodeChildren([]entities.Node{entities.NewText(line, body)})
		return n
	}
}

// buildPhrase builds an interpreted-text/phrase-reference node from the
// backtick body and its trailing `_`/`__` suffix, handling an embedded
// `<target>` alias.
func buildPhrase(inner, suffix string, line int) entities.Node {
	if suffix == "" {
		n := &entities.Literal{}
		n.Span = entities.NewSpan(line)
		n.SetNodeChildren([]entities.Node{entities.NewText(line, inner)})
		return n
	}
	label := inner
	target := ""
	if m := phraseURLRe.FindStringSubmatch(inner); m != nil {
		label = strings.TrimSpace(m[1])
		target = strings.TrimSpace(m[2])
	}
	n := &entities.Reference{RefName: label}
	if target != "" {
		n.RefURI = target
	}
	n.Span = entities.NewSpan(line)
	n.SetNodeChildren([]entities.Node{entities.NewText(line, label)})
	return n
}

// splitDomain separates a "domain:name" role name into its parts; a
// bare name has an empty domain.
func splitDomain(name string) (domain, bare string) {
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return "", name
}
