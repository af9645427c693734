// Package statemachine implements the generic line-oriented cooperative
// state machine that drives the reStructuredText block parser (spec.md
// §4.2). It owns line-cursor bookkeeping and indentation-aware block
// extraction; it knows nothing about reStructuredText syntax itself.
package statemachine

import (
	"fmt"
	"strings"
)

// SourceLine is one line of input annotated with the file and original
// line number it was read from, so nested parses (included files,
// synthesized giza pages) keep accurate diagnostic positions.
type SourceLine struct {
	Text   string
	Source string
	Number int // 1-based, in its originating source
}

// normalizeLine expands tabs to the next multiple-of-8 stop, strips a
// trailing carriage return, and strips trailing whitespace, matching
// docutils' line-input normalization.
func normalizeLine(s string) string {
	s = strings.TrimRight(s, "\r")
	s = strings.ReplaceAll(s, "\v", "")
	s = strings.ReplaceAll(s, "\f", "")
	if strings.IndexByte(s, '\t') < 0 {
		return strings.TrimRight(s, " \t")
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			spaces := 8 - (col % 8)
			b.WriteString(strings.Repeat(" ", spaces))
			col += spaces
			continue
		}
		b.WriteRune(r)
		col++
	}
	return strings.TrimRight(b.String(), " \t")
}

// NewInput builds the line view for one source file's raw text.
func NewInput(source, text string) []SourceLine {
	raw := strings.Split(text, "\n")
	lines := make([]SourceLine, len(raw))
	for i, l := range raw {
		lines[i] = SourceLine{Text: normalizeLine(l), Source: source, Number: i + 1}
	}
	return lines
}

// Eof is returned by cursor movement when no more lines exist; it is
// also the sentinel signal value transition methods can return from a
// state's eof handler (spec.md §4.2).
var Eof = fmt.Errorf("end of input")

// TransitionCorrection instructs the driver to back up one line and
// retry as a different transition in the same state.
type TransitionCorrection struct{ Name string }

func (e TransitionCorrection) Error() string { return "retry as transition " + e.Name }

// StateCorrection instructs the driver to back up one line and
// re-enter under a different state (optionally at a named transition).
type StateCorrection struct {
	State      string
	Transition string
}

func (e StateCorrection) Error() string {
	if e.Transition == "" {
		return "retry under state " + e.State
	}
	return "retry under state " + e.State + " transition " + e.Transition
}

// UnexpectedIndentation is returned by GetTextBlock when flushLeft is
// required and an indented line is encountered.
var UnexpectedIndentation = fmt.Errorf("unexpected indentation")

// Machine is the line cursor and indented-block extraction engine.
// It holds no reStructuredText-specific state; the block parser layers
// states and transitions on top of it.
type Machine struct {
	lines  []SourceLine
	offset int // index of the line about to be (or just) consumed; -1 before first
}

// NewMachine creates a cursor over lines, initially positioned before
// the first line.
func NewMachine(lines []SourceLine) *Machine {
	return &Machine{lines: lines, offset: -1}
}

// Len reports the number of lines in the input view.
func (m *Machine) Len() int { return len(m.lines) }

// Offset reports the current cursor index.
func (m *Machine) Offset() int { return m.offset }

// AtEof reports whether the cursor has moved past the last line.
func (m *Machine) AtEof() bool { return m.offset >= len(m.lines) }

// Current returns the line at the cursor, or ok=false at EOF.
func (m *Machine) Current() (SourceLine, bool) {
	if m.offset < 0 || m.offset >= len(m.lines) {
		return SourceLine{}, false
	}
	return m.lines[m.offset], true
}

// NextLine advances the cursor by one and returns the new current
// line, or Eof once the input is exhausted.
func (m *Machine) NextLine() (SourceLine, error) {
	m.offset++
	if m.offset >= len(m.lines) {
		return SourceLine{}, Eof
	}
	return m.lines[m.offset], nil
}

// PreviousLine retreats the cursor by n lines (n defaults to 1 when
// zero) and returns the new current line.
func (m *Machine) PreviousLine(n int) (SourceLine, bool) {
	if n <= 0 {
		n = 1
	}
	m.offset -= n
	return m.Current()
}

// GotoLine moves the cursor to an absolute 0-based index.
func (m *Machine) GotoLine(abs int) (SourceLine, bool) {
	m.offset = abs
	return m.Current()
}

// GetIndented extracts a contiguous indented block starting at the
// cursor. blockIndent, when non-negative, forces that indent instead
// of inferring it from the first line. firstIndent overrides the
// indent expected of the very first line only (e.g. after a marker like
// "- "). untilBlank continues through blank lines instead of stopping
// at the first one. stripIndent controls whether the common indent is
// removed from the returned lines.
//
// Returns the block's lines (already advanced past), the indent that
// was stripped, and whether the block ended on a blank line.
func (m *Machine) GetIndented(blockIndent, firstIndent int, untilBlank, stripIndent bool) (lines []string, indent int, blankFinish bool) {
	indent = -1
	if blockIndent >= 0 {
		indent = blockIndent
	}

	first := true
	for {
		line, ok := m.Current()
		if !ok {
			blankFinish = true
			break
		}
		trimmed := strings.TrimLeft(line.Text, " ")
		lineIndent := len(line.Text) - len(trimmed)

		if trimmed == "" {
			if untilBlank {
				lines = append(lines, "")
				m.offset++
				continue
			}
			blankFinish = true
			m.offset++
			break
		}

		want := indent
		if first && firstIndent >= 0 {
			want = firstIndent
		}
		if want >= 0 && lineIndent < want {
			break
		}
		if indent < 0 {
			indent = lineIndent
		}

		if stripIndent {
			strip := indent
			if first && firstIndent >= 0 && firstIndent < indent {
				strip = firstIndent
			}
			if strip > len(line.Text) {
				strip = len(line.Text)
			}
			lines = append(lines, line.Text[strip:])
		} else {
			lines = append(lines, line.Text)
		}
		m.offset++
		first = false
	}
	if indent < 0 {
		indent = 0
	}
	return lines, indent, blankFinish
}

// GetTextBlock accumulates lines from the cursor until a blank line or
// EOF. If flushLeft is true, any indented line aborts the block with
// UnexpectedIndentation.
func (m *Machine) GetTextBlock(flushLeft bool) ([]string, error) {
	var lines []string
	for {
		line, ok := m.Current()
		if !ok {
			break
		}
		if strings.TrimSpace(line.Text) == "" {
			break
		}
		if flushLeft && len(line.Text) > 0 && (line.Text[0] == ' ' || line.Text[0] == '\t') {
			return lines, UnexpectedIndentation
		}
		lines = append(lines, line.Text)
		m.offset++
	}
	return lines, nil
}
