// Package directive implements domain-prefixed directive dispatch
// (spec.md §4.4): given a resolved Spec entry and a directive's raw
// arguments/options/content, it produces the directive's AST node plus
// any pending tasks (deferred IO) and static assets it registers.
package directive

import (
	"strings"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/specdsl"
	"gopkg.in/yaml.v3"
)

// Context carries everything a directive handler needs. ParseChildren
// lets a handler recurse into the block parser for indented content
// without directive importing the block package (it is supplied by the
// block parser at call time, breaking the cycle).
type Context struct {
	Spec          *specdsl.Spec
	Domain        string
	Name          string
	Argument      []string
	Options       map[string]string
	ContentLines  []string
	ContentOffset int
	BlockText     string
	Line          int
	FileId        entities.FileId
	ParseChildren func(lines []string, startLine int) []entities.Node
}

// Result is everything a directive handler produces.
type Result struct {
	Node    entities.Node
	Diags   entities.Diagnostics
	Pending []entities.PendingTask
	Assets  []*entities.StaticAsset
}

// Dispatch resolves and executes one directive invocation.
func Dispatch(ctx Context) Result {
	switch ctx.Name {
	case "code-block", "code", "sourcecode":
		return codeBlock(ctx)
	case "literalinclude":
		return literalInclude(ctx)
	case "include":
		return include(ctx)
	case "figure", "image", "atf-image":
		return figure(ctx)
	case "list-table":
		return listTable(ctx)
	case "toctree":
		return toctree(ctx)
	case "versionadded", "versionchanged", "deprecated":
		return versioned(ctx)
	case "card-group":
		return cardGroup(ctx)
	case "todo":
		return todo(ctx)
	case "cond":
		return cond(ctx)
	}
	if ctx.Name == "tabs" || strings.HasPrefix(ctx.Name, "tabs-") {
		return tabs(ctx)
	}
	return generic(ctx)
}

func codeBlock(ctx Context) Result {
	lang := ""
	if len(ctx.Argument) > 0 {
		lang = ctx.Argument[0]
	}
	copyable := true
	if v, ok := ctx.Options["copyable"]; ok {
		copyable = v != "false"
	}
	var diags entities.Diagnostics
	var emphasize [][2]int
	if raw, ok := ctx.Options["emphasize-lines"]; ok {
		ranges, err := specdsl.ParseLinenos(raw)
		if err != nil {
			diags = append(diags, entities.Warningf(entities.KindInvalidOptionValue, ctx.Line,
				"invalid emphasize-lines specification %q: %v", raw, err))
		} else {
			contentLen := len(ctx.ContentLines)
			for _, r := range ranges {
				if r[0] < 1 || r[1] > contentLen {
					diags = append(diags, entities.Warningf(entities.KindInvalidOptionValue, ctx.Line,
						"emphasize-lines %d-%d out of range for %d content lines", r[0], r[1], contentLen))
					continue
				}
				emphasize = append(emphasize, r)
			}
		}
	}
	n := &entities.Code{
		Lang:            lang,
		Copyable:        copyable,
		EmphasizeLines:  emphasize,
		Value:           strings.Join(ctx.ContentLines, "\n"),
	}
	n.Span = entities.NewSpan(ctx.Line)
	return Result{Node: n, Diags: diags}
}

func literalInclude(ctx Context) Result {
	if len(ctx.Argument) == 0 {
		return Result{Diags: entities.Diagnostics{entities.Errorf(entities.KindExpectedPathArg, ctx.Line, "literalinclude requires a path argument")}}
	}
	path := ctx.Argument[0]
	placeholder := &entities.Directive{Domain: ctx.Domain, Name: "literalinclude", Argument: ctx.Argument}
	placeholder.Span = entities.NewSpan(ctx.Line)

	extra := map[string]string{"path": path}
	for _, k := range []string{"start-after", "end-before", "dedent", "language", "emphasize-lines"} {
		if v, ok := ctx.Options[k]; ok {
			extra[k] = v
		}
	}
	if sa, ok := extra["start-after"]; ok {
		if eb, ok2 := extra["end-before"]; ok2 && strings.Index(ctx.BlockText, eb) >= 0 && strings.Index(ctx.BlockText, sa) > strings.Index(ctx.BlockText, eb) {
			return Result{
				Node:  placeholder,
				Diags: entities.Diagnostics{entities.Errorf(entities.KindInvalidLiteralInclude, ctx.Line, "start-after occurs after end-before in %s", path)},
			}
		}
	}
	task := entities.PendingTask{Kind: "literalinclude", Node: placeholder, Path: path, Extra: extra}
	return Result{Node: placeholder, Pending: []entities.PendingTask{task}}
}

func include(ctx Context) Result {
	if len(ctx.Argument) == 0 {
		return Result{Diags: entities.Diagnostics{entities.Errorf(entities.KindExpectedPathArg, ctx.Line, "include requires a path argument")}}
	}
	n := &entities.Directive{Domain: ctx.Domain, Name: "include", Argument: ctx.Argument}
	n.Span = entities.NewSpan(ctx.Line)
	return Result{Node: n}
}

func figure(ctx Context) Result {
	if len(ctx.Argument) == 0 {
		return Result{Diags: entities.Diagnostics{entities.Errorf(entities.KindExpectedImgArg, ctx.Line, "%s requires an image path argument", ctx.Name)}}
	}
	path := ctx.Argument[0]
	fileid := ctx.FileId.Join(path)
	asset := entities.NewStaticAsset(path, fileid, path, true)
	n := &entities.Directive{Domain: ctx.Domain, Name: ctx.Name, Argument: ctx.Argument, Options: map[string]entities.OptionValue{}}
	n.Span = entities.NewSpan(ctx.Line)
	task := entities.PendingTask{Kind: "checksum", Node: n, Path: path, Extra: map[string]string{"asset_key": path}}
	return Result{Node: n, Pending: []entities.PendingTask{task}, Assets: []*entities.StaticAsset{asset}}
}

func listTable(ctx Context) Result {
	n := &entities.Directive{Domain: ctx.Domain, Name: "list-table", Argument: ctx.Argument}
	n.Span = entities.NewSpan(ctx.Line)
	children := ctx.ParseChildren(ctx.ContentLines, ctx.ContentOffset)
	n.SetNodeChildren(children)

	var diags entities.Diagnostics
	widths := -1
	if w, ok := ctx.Options["widths"]; ok {
		widths = len(strings.Fields(strings.ReplaceAll(w, ",", " ")))
	}
	for _, c := range children {
		list, ok := c.(*entities.ListNode)
		if !ok {
			continue
		}
		for _, row := range list.Children {
			item, ok := row.(*entities.ListNodeItem)
			if !ok {
				continue
			}
			cols := len(item.Children)
			if widths < 0 {
				widths = cols
				continue
			}
			if cols != widths {
				diags = append(diags, entities.Errorf(entities.KindInvalidTableStructure, ctx.Line,
					"list-table row has %d columns, expected %d", cols, widths))
			}
		}
	}
	return Result{Node: n, Diags: diags}
}

func toctree(ctx Context) Result {
	var entries []entities.TocTreeEntry
	var diags entities.Diagnostics
	for i, raw := range ctx.ContentLines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		entry := parseTocTreeEntry(line)
		if entry.Title != "" && entry.Slug == "" && entry.URL == "" {
			diags = append(diags, entities.Errorf(entities.KindInvalidURL, ctx.ContentOffset+i, "toctree entry with a label but no target: %q", line))
			continue
		}
		entries = append(entries, entry)
	}
	n := &entities.TocTreeDirective{Entries: entries}
	n.Span = entities.NewSpan(ctx.Line)
	return Result{Node: n, Diags: diags}
}

func parseTocTreeEntry(line string) entities.TocTreeEntry {
	if idx := strings.Index(line, "<"); idx >= 0 && strings.HasSuffix(line, ">") {
		title := strings.TrimSpace(line[:idx])
		target := strings.TrimSpace(line[idx+1 : len(line)-1])
		if isAbsoluteURL(target) {
			return entities.TocTreeEntry{Title: title, URL: target, IsURL: true}
		}
		return entities.TocTreeEntry{Title: title, Slug: target}
	}
	if isAbsoluteURL(line) {
		return entities.TocTreeEntry{URL: line, IsURL: true}
	}
	return entities.TocTreeEntry{Slug: line}
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func versioned(ctx Context) Result {
	n := &entities.Directive{Domain: ctx.Domain, Name: ctx.Name, Argument: ctx.Argument}
	n.Span = entities.NewSpan(ctx.Line)
	children := ctx.ParseChildren(ctx.ContentLines, ctx.ContentOffset)
	n.SetNodeChildren(children)
	return Result{Node: n}
}

func tabs(ctx Context) Result {
	var legacy struct {
		Hidden bool `yaml:"hidden"`
		Tabs   []struct {
			Id      string `yaml:"id"`
			Name    string `yaml:"name"`
			Content string `yaml:"content"`
		} `yaml:"tabs"`
	}
	if err := yaml.Unmarshal([]byte(ctx.BlockText), &legacy); err == nil && len(legacy.Tabs) > 0 {
		n := &entities.Directive{Domain: ctx.Domain, Name: "tabs", Options: map[string]entities.OptionValue{}}
		n.Span = entities.NewSpan(ctx.Line)
		if legacy.Hidden {
			n.Options["hidden"] = entities.OptionValue{Raw: "true", Kind: "boolean", Bool: true}
		}
		var children []entities.Node
		for _, t := range legacy.Tabs {
			tab := &entities.Directive{Domain: ctx.Domain, Name: "tab", Options: map[string]entities.OptionValue{
				"tabid": {Raw: t.Id, Kind: "string"},
			}}
			tab.Span = entities.NewSpan(ctx.Line)
			tab.SetNodeChildren(ctx.ParseChildren(strings.Split(t.Content, "\n"), ctx.ContentOffset))
			children = append(children, tab)
			_ = t.Name
		}
		n.SetNodeChildren(children)
		return Result{Node: n}
	}

	n := &entities.Directive{Domain: ctx.Domain, Name: "tabs"}
	n.Span = entities.NewSpan(ctx.Line)
	n.SetNodeChildren(ctx.ParseChildren(ctx.ContentLines, ctx.ContentOffset))
	return Result{Node: n}
}

func cardGroup(ctx Context) Result {
	var cards []struct {
		Id       string `yaml:"id"`
		Headline string `yaml:"headline"`
		Image    string `yaml:"image"`
		Link     string `yaml:"link"`
	}
	var diags entities.Diagnostics
	if err := yaml.Unmarshal([]byte(ctx.BlockText), &cards); err != nil {
		diags = append(diags, entities.Errorf(entities.KindErrorParsingYAMLFile, ctx.Line, "card-group: %v", err))
	}
	n := &entities.Directive{Domain: ctx.Domain, Name: "card-group"}
	n.Span = entities.NewSpan(ctx.Line)
	var children []entities.Node
	for _, c := range cards {
		if c.Id == "" || c.Headline == "" {
			diags = append(diags, entities.Errorf(entities.KindMissingOption, ctx.Line, "card-group card missing id or headline"))
			continue
		}
		card := &entities.Directive{Domain: ctx.Domain, Name: "cardgroup-card", Options: map[string]entities.OptionValue{
			"id":       {Raw: c.Id, Kind: "string"},
			"headline": {Raw: c.Headline, Kind: "string"},
			"image":    {Raw: c.Image, Kind: "string"},
			"link":     {Raw: c.Link, Kind: "string"},
		}}
		card.Span = entities.NewSpan(ctx.Line)
		children = append(children, card)
	}
	n.SetNodeChildren(children)
	return Result{Node: n, Diags: diags}
}

func todo(ctx Context) Result {
	msg := strings.Join(ctx.Argument, " ")
	if msg == "" {
		msg = strings.Join(ctx.ContentLines, " ")
	}
	return Result{Diags: entities.Diagnostics{entities.Infof(entities.KindTodoInfo, ctx.Line, "%s", msg)}}
}

func cond(ctx Context) Result {
	n := &entities.Directive{Domain: ctx.Domain, Name: "cond", Argument: ctx.Argument}
	n.Span = entities.NewSpan(ctx.Line)
	n.SetNodeChildren(ctx.ParseChildren(ctx.ContentLines, ctx.ContentOffset))
	return Result{Node: n}
}

// generic validates an undeclared-specially directive purely against
// the spec registry (spec.md §8 invariant 2: every Directive.options key
// is declared for (domain, name)).
func generic(ctx Context) Result {
	var diags entities.Diagnostics
	options := map[string]entities.OptionValue{}

	spec, resolvedDomain, ok := (*specdsl.DirectiveSpec)(nil), "", false
	if ctx.Spec != nil {
		spec, resolvedDomain, ok = ctx.Spec.LookupDirective(ctx.Domain, ctx.Name)
	}

	for name, raw := range ctx.Options {
		if !ok {
			options[name] = entities.OptionValue{Raw: raw, Kind: "string"}
			continue
		}
		optSpec, declared := spec.Options[name]
		if !declared {
			diags = append(diags, entities.Errorf(entities.KindUnknownOptionId, ctx.Line, "%q is not a declared option of %s:%s", name, ctx.Domain, ctx.Name))
			continue
		}
		v := specdsl.GetValidator(optSpec)
		val, err := v(raw)
		if err != nil {
			diags = append(diags, entities.Errorf(entities.KindInvalidOptionValue, ctx.Line, "option %q: %v", name, err))
			continue
		}
		options[name] = val
	}

	n := &entities.Directive{
		Domain:    resolvedDomain,
		Name:      ctx.Name,
		Argument:  ctx.Argument,
		Options:   options,
		BlockText: ctx.BlockText,
	}
	n.Span = entities.NewSpan(ctx.Line)
	if ok && (spec.ContentType == "block" || spec.ContentType == "") {
		n.SetNodeChildren(ctx.ParseChildren(ctx.ContentLines, ctx.ContentOffset))
	}
	return Result{Node: n, Diags: diags}
}
