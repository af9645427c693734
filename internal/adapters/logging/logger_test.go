package logging

import (
	"context"
	"encoding/json"
	"os"
	"testing"
)

// captureStderr redirects os.Stderr for the duration of fn and returns
// everything written to it, since Logger writes its JSON lines directly
// to os.Stderr rather than through an injectable io.Writer.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	fn()

	w.Close()
	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	return string(buf[:n])
}

func decodeLogLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v\nline: %s", err, line)
	}
	return entry
}

func TestInfoWritesStructuredJSON(t *testing.T) {
	l := New(LevelInfo)
	out := captureStderr(t, func() {
		l.Info("build started", "files", 3)
	})

	entry := decodeLogLine(t, out)
	if entry["level"] != string(LevelInfo) {
		t.Errorf("level = %v, want %q", entry["level"], LevelInfo)
	}
	if entry["message"] != "build started" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["files"] != float64(3) {
		t.Errorf("files = %v, want 3", entry["files"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected a timestamp field")
	}
}

func TestDebugSuppressedBelowDebugLevel(t *testing.T) {
	l := New(LevelInfo)
	out := captureStderr(t, func() {
		l.Debug("verbose detail")
	})
	if out != "" {
		t.Errorf("expected Debug to be suppressed at LevelInfo, got %q", out)
	}
}

func TestDebugEmittedAtDebugLevel(t *testing.T) {
	l := New(LevelDebug)
	out := captureStderr(t, func() {
		l.Debug("verbose detail")
	})
	if out == "" {
		t.Fatal("expected Debug to be emitted at LevelDebug")
	}
	entry := decodeLogLine(t, out)
	if entry["message"] != "verbose detail" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestErrorIncludesErrorField(t *testing.T) {
	l := New(LevelInfo)
	out := captureStderr(t, func() {
		l.Error("build failed", os.ErrNotExist, "stage", "parse")
	})
	entry := decodeLogLine(t, out)
	if entry["error"] != os.ErrNotExist.Error() {
		t.Errorf("error = %v, want %q", entry["error"], os.ErrNotExist.Error())
	}
	if entry["stage"] != "parse" {
		t.Errorf("stage = %v, want %q", entry["stage"], "parse")
	}
}

func TestWithFieldsPersistsAcrossCalls(t *testing.T) {
	base := New(LevelInfo)
	scoped := base.WithFields("request_id", "abc123")

	out := captureStderr(t, func() {
		scoped.Info("handling request")
	})
	entry := decodeLogLine(t, out)
	if entry["request_id"] != "abc123" {
		t.Errorf("request_id = %v, want %q", entry["request_id"], "abc123")
	}

	// The base logger itself must remain unaffected.
	out = captureStderr(t, func() {
		base.Info("unrelated")
	})
	entry = decodeLogLine(t, out)
	if _, ok := entry["request_id"]; ok {
		t.Error("expected base logger to be unaffected by WithFields on the derived logger")
	}
}

func TestWithContextPreservesFieldsAndLevel(t *testing.T) {
	base := New(LevelDebug).WithFields("component", "cache")
	ctxLogger := base.WithContext(context.Background())

	out := captureStderr(t, func() {
		ctxLogger.Debug("cache lookup")
	})
	if out == "" {
		t.Fatal("expected WithContext to preserve the debug level from base")
	}
	entry := decodeLogLine(t, out)
	if entry["component"] != "cache" {
		t.Errorf("component = %v, want %q", entry["component"], "cache")
	}
}

func TestNonStringKeysAreSkipped(t *testing.T) {
	l := New(LevelInfo)
	out := captureStderr(t, func() {
		l.Info("odd args", 42, "value")
	})
	entry := decodeLogLine(t, out)
	if _, ok := entry["42"]; ok {
		t.Error("expected the non-string key to be skipped, not stringified")
	}
}
