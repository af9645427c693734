package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// stopWatcher is a helper to properly close a watcher in tests.
func stopWatcher(t *testing.T, fw *FileWatcher) {
	if err := fw.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

// TestNewFileWatcher tests watcher initialization.
func TestNewFileWatcher(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	if fw == nil {
		t.Error("NewFileWatcher returned nil")
	}

	if err := fw.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

// TestWatchInvalidPath tests error handling for invalid paths.
func TestWatchInvalidPath(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer func() {
		if err := fw.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	}()

	ctx := context.Background()
	_, err = fw.Watch(ctx, "/nonexistent/path/that/does/not/exist")
	if err == nil {
		t.Error("expected error for nonexistent path, got nil")
	}
}

// TestWatchStoppedWatcher tests error when watching after stop.
func TestWatchStoppedWatcher(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	ctx := context.Background()
	tmpDir := t.TempDir()
	_, watchErr := fw.Watch(ctx, tmpDir)
	if watchErr == nil {
		t.Error("expected error when watching after stop, got nil")
	}
}

// TestWatchRstFile tests detecting reStructuredText file changes.
func TestWatchRstFile(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	rstFile := filepath.Join(tmpDir, "index.rst")
	if err := os.WriteFile(rstFile, []byte("Title\n=====\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Path != "index.rst" {
			t.Errorf("expected path 'index.rst', got '%s'", evt.Path)
		}
		if evt.Op != "create" && evt.Op != "write" {
			t.Errorf("expected 'create' or 'write', got '%s'", evt.Op)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for event")
	}
}

// TestWatchGizaYAMLFile tests detecting giza YAML document changes.
func TestWatchGizaYAMLFile(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	yamlFile := filepath.Join(tmpDir, "steps-install.yaml")
	if err := os.WriteFile(yamlFile, []byte("- title: Install\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Path != "steps-install.yaml" {
			t.Errorf("expected path 'steps-install.yaml', got '%s'", evt.Path)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for event")
	}
}

// TestWatchIgnoresNonSourceFiles tests that files outside the source
// extension set (.rst, .txt, .yaml, .yml) are ignored.
func TestWatchIgnoresNonSourceFiles(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	pngFile := filepath.Join(tmpDir, "diagram.png")
	if err := os.WriteFile(pngFile, []byte("not really a png"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		t.Errorf("unexpected event for non-source file: %v", evt)
	case <-time.After(500 * time.Millisecond):
		// Expected: no event
	}
}

// TestWatchIgnoresGitDirectory tests that .git directory is ignored.
func TestWatchIgnoresGitDirectory(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	gitDir := filepath.Join(tmpDir, ".git")
	if err := os.MkdirAll(gitDir, 0755); err != nil {
		t.Fatalf("failed to create .git directory: %v", err)
	}

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	rstFile := filepath.Join(gitDir, "test.rst")
	if err := os.WriteFile(rstFile, []byte("Test\n====\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		t.Errorf("unexpected event from .git directory: %v", evt)
	case <-time.After(500 * time.Millisecond):
		// Expected: no event
	}
}

// TestWatchIgnoresDocpilerCacheDirectory tests that the .docpiler
// directory (global cache/config root) is ignored.
func TestWatchIgnoresDocpilerCacheDirectory(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	cacheDir := filepath.Join(tmpDir, ".docpiler")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		t.Fatalf("failed to create .docpiler directory: %v", err)
	}

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	rstFile := filepath.Join(cacheDir, "test.rst")
	if err := os.WriteFile(rstFile, []byte("Test\n====\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		t.Errorf("unexpected event from .docpiler directory: %v", evt)
	case <-time.After(500 * time.Millisecond):
		// Expected: no event
	}
}

// TestWatchSubdirectory tests watching files in subdirectories.
func TestWatchSubdirectory(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	subDir := filepath.Join(tmpDir, "source", "tutorial")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory: %v", err)
	}

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	rstFile := filepath.Join(subDir, "install.rst")
	if err := os.WriteFile(rstFile, []byte("Install\n=======\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		expectedPath := filepath.ToSlash(filepath.Join("source", "tutorial", "install.rst"))
		if evt.Path != expectedPath {
			t.Errorf("expected path '%s', got '%s'", expectedPath, evt.Path)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for event")
	}
}

// TestWatchDebouncing tests that rapid events are debounced.
func TestWatchDebouncing(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	rstFile := filepath.Join(tmpDir, "test.rst")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(rstFile, []byte("Test "+string(rune('0'+i))), 0644); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	eventCount := 0
	timeout := time.After(500 * time.Millisecond)
loop:
	for {
		select {
		case <-events:
			eventCount++
		case <-timeout:
			break loop
		}
	}

	if eventCount > 3 {
		t.Errorf("expected debounced events (<=3), got %d", eventCount)
	}
}

// TestWatchContextCancellation tests that context cancellation stops watching.
func TestWatchContextCancellation(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	cancel()

	rstFile := filepath.Join(tmpDir, "test.rst")
	if err := os.WriteFile(rstFile, []byte("Test\n====\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case <-events:
		t.Error("unexpected event after context cancellation")
	case <-time.After(500 * time.Millisecond):
		// Expected: no event
	}
}

// TestWatchPathsAreCaseSensitive tests that fileids preserve case
// rather than being lowercased (fileids are case-sensitive, spec.md
// §3's FileId identity rules).
func TestWatchPathsAreCaseSensitive(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	rstFile := filepath.Join(tmpDir, "TEST.rst")
	if err := os.WriteFile(rstFile, []byte("Test\n====\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Path != "TEST.rst" {
			t.Errorf("expected case-preserved path 'TEST.rst', got '%s'", evt.Path)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for event")
	}
}

// TestWatchFileRemoval tests detecting file removal.
func TestWatchFileRemoval(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	rstFile := filepath.Join(tmpDir, "test.rst")
	if err := os.WriteFile(rstFile, []byte("Test\n====\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case <-events:
		// Got creation event
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for creation event")
		return
	}

	if err := os.Remove(rstFile); err != nil {
		t.Fatalf("failed to remove test file: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Op != "remove" {
			t.Errorf("expected 'remove' operation, got '%s'", evt.Op)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for removal event")
	}
}

// TestStopClosesChannel tests that Stop closes the event channel.
func TestStopClosesChannel(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("timeout waiting for channel close")
	}
}

// TestStopIdempotent tests that Stop can be called multiple times.
func TestStopIdempotent(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}

	tmpDir := t.TempDir()
	ctx := context.Background()

	_, err = fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

// TestWatchNewDirectoryCreation tests that newly created directories are watched.
func TestWatchNewDirectoryCreation(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	newDir := filepath.Join(tmpDir, "newsource")
	if err := os.MkdirAll(newDir, 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	rstFile := filepath.Join(newDir, "test.rst")
	if err := os.WriteFile(rstFile, []byte("Test\n====\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		expectedPath := filepath.ToSlash(filepath.Join("newsource", "test.rst"))
		if evt.Path != expectedPath {
			t.Errorf("expected path '%s', got '%s'", expectedPath, evt.Path)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for event")
	}
}

// TestWatchForwardSlashes tests that paths use forward slashes on all platforms.
func TestWatchForwardSlashes(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	nestedDir := filepath.Join(tmpDir, "source", "reference", "auth")
	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("failed to create nested directory: %v", err)
	}

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	rstFile := filepath.Join(nestedDir, "login.rst")
	if err := os.WriteFile(rstFile, []byte("Login\n=====\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case evt := <-events:
		if !containsOnlyForwardSlashes(evt.Path) {
			t.Errorf("path contains backslashes: %s", evt.Path)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for event")
	}
}

func containsOnlyForwardSlashes(path string) bool {
	for _, ch := range path {
		if ch == '\\' {
			return false
		}
	}
	return true
}

// TestWatchMultipleFiles tests watching multiple file changes.
func TestWatchMultipleFiles(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer stopWatcher(t, fw)

	tmpDir := t.TempDir()
	ctx := context.Background()

	events, err := fw.Watch(ctx, tmpDir)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	files := []string{"file1.rst", "file2.yaml", "file3.txt"}
	for _, file := range files {
		filePath := filepath.Join(tmpDir, file)
		if err := os.WriteFile(filePath, []byte("content"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}

	receivedPaths := make(map[string]bool)
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case evt := <-events:
			receivedPaths[evt.Path] = true
		case <-timeout:
			break loop
		}
	}

	for _, file := range files {
		if !receivedPaths[file] {
			t.Errorf("did not receive event for file: %s", file)
		}
	}
}
