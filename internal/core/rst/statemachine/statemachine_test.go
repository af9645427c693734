package statemachine

import "testing"

func TestNewInputExpandsTabsAndTrimsTrailingWhitespace(t *testing.T) {
	lines := NewInput("a.txt", "a\tb  \nsecond\r\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines (including trailing empty), got %d", len(lines))
	}
	if lines[0].Text != "a       b" {
		t.Errorf("tab expansion = %q", lines[0].Text)
	}
	if lines[1].Text != "second" {
		t.Errorf("CR not stripped: %q", lines[1].Text)
	}
}

func TestMachineCursorMovement(t *testing.T) {
	m := NewMachine(NewInput("t", "one\ntwo\nthree\n"))

	l, err := m.NextLine()
	if err != nil || l.Text != "one" {
		t.Fatalf("NextLine #1 = %q, %v", l.Text, err)
	}
	l, err = m.NextLine()
	if err != nil || l.Text != "two" {
		t.Fatalf("NextLine #2 = %q, %v", l.Text, err)
	}
	l, ok := m.PreviousLine(1)
	if !ok || l.Text != "one" {
		t.Fatalf("PreviousLine = %q, %v", l.Text, ok)
	}
}

func TestMachineNextLineReachesEof(t *testing.T) {
	m := NewMachine(NewInput("t", "only\n"))
	if _, err := m.NextLine(); err != nil {
		t.Fatalf("unexpected error on first line: %v", err)
	}
	if _, err := m.NextLine(); err != nil {
		t.Fatalf("unexpected error on blank trailing line: %v", err)
	}
	if _, err := m.NextLine(); err != Eof {
		t.Fatalf("expected Eof, got %v", err)
	}
}

func TestMachineOffsetAndAtEof(t *testing.T) {
	m := NewMachine(NewInput("t", "one\ntwo\n"))
	if got := m.Offset(); got != -1 {
		t.Fatalf("Offset before any movement = %d, want -1", got)
	}
	if m.AtEof() {
		t.Fatal("AtEof true before the cursor has moved past the last line")
	}

	m.NextLine()
	m.NextLine()
	if got := m.Offset(); got != 1 {
		t.Fatalf("Offset after two NextLine calls = %d, want 1", got)
	}

	m.NextLine()
	if !m.AtEof() {
		t.Fatal("expected AtEof true once the cursor has advanced past the last line")
	}
}

func TestMachineGotoLine(t *testing.T) {
	m := NewMachine(NewInput("t", "one\ntwo\nthree\n"))

	line, ok := m.GotoLine(2)
	if !ok || line.Text != "three" {
		t.Fatalf("GotoLine(2) = %q, %v, want \"three\", true", line.Text, ok)
	}
	if got := m.Offset(); got != 2 {
		t.Errorf("Offset after GotoLine(2) = %d, want 2", got)
	}

	line, ok = m.GotoLine(0)
	if !ok || line.Text != "one" {
		t.Fatalf("GotoLine(0) = %q, %v, want \"one\", true", line.Text, ok)
	}
}

func TestGetIndentedStripsCommonIndent(t *testing.T) {
	m := NewMachine(NewInput("t", "   foo\n   bar\n\n   baz\n"))
	m.NextLine()
	m.PreviousLine(1)

	lines, indent, blankFinish := m.GetIndented(-1, -1, false, true)
	if indent != 3 {
		t.Errorf("indent = %d, want 3", indent)
	}
	if !blankFinish {
		t.Error("expected blankFinish = true at blank line")
	}
	want := []string{"foo", "bar"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestGetIndentedUntilBlank(t *testing.T) {
	m := NewMachine(NewInput("t", "  a\n\n  b\n"))
	m.NextLine()
	m.PreviousLine(1)

	lines, _, _ := m.GetIndented(-1, -1, true, true)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines including the blank, got %v", lines)
	}
	if lines[1] != "" {
		t.Errorf("expected blank line preserved, got %q", lines[1])
	}
}

func TestGetTextBlockStopsAtBlank(t *testing.T) {
	m := NewMachine(NewInput("t", "one\ntwo\n\nthree\n"))
	m.NextLine()
	m.PreviousLine(1)

	lines, err := m.GetTextBlock(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %v", lines)
	}
}

func TestGetTextBlockFlushLeftRejectsIndentation(t *testing.T) {
	m := NewMachine(NewInput("t", "one\n  two\n"))
	m.NextLine()
	m.PreviousLine(1)

	_, err := m.GetTextBlock(true)
	if err != UnexpectedIndentation {
		t.Fatalf("expected UnexpectedIndentation, got %v", err)
	}
}
