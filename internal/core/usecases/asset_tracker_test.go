package usecases

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madstone-tech/docpiler/internal/core/entities"
)

type fakeLoader struct {
	files map[entities.FileId][]byte
	calls map[entities.FileId]int
}

func newFakeLoader(files map[entities.FileId][]byte) *fakeLoader {
	return &fakeLoader{files: files, calls: map[entities.FileId]int{}}
}

func (f *fakeLoader) Load(fileid entities.FileId) ([]byte, error) {
	f.calls[fileid]++
	data, ok := f.files[fileid]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestRunLiteralIncludeTrimsAroundAnchorsAndDedents(t *testing.T) {
	loader := newFakeLoader(map[entities.FileId][]byte{
		"snippets/example.sh": []byte("setup\n  // start\n  do_thing()\n  do_other()\n  // end\nteardown\n"),
	})
	tracker := NewAssetTracker(loader)

	dir := &entities.Directive{Name: "literalinclude", Argument: []string{"snippets/example.sh"}}
	dir.Span = entities.NewSpan(1)
	task := entities.PendingTask{
		Kind: "literalinclude",
		Node: dir,
		Path: "snippets/example.sh",
		Extra: map[string]string{
			"path":        "snippets/example.sh",
			"start-after": "// start",
			"end-before":  "// end",
			"dedent":      "",
		},
	}
	page := entities.NewPage("index.txt", "")
	page.PendingTasks = []entities.PendingTask{task}

	diags := tracker.RunPendingTasks(page)
	require.Empty(t, diags)
	require.Equal(t, "do_thing()\ndo_other()", dir.BlockText)
	require.Len(t, page.PendingTasks, 0)
	if _, ok := page.Dependencies["snippets/example.sh"]; !ok {
		t.Fatal("expected a recorded dependency hash for the included file")
	}
}

func TestRunLiteralIncludeReportsMissingAnchor(t *testing.T) {
	loader := newFakeLoader(map[entities.FileId][]byte{
		"snippets/example.sh": []byte("no anchors here\n"),
	})
	tracker := NewAssetTracker(loader)

	dir := &entities.Directive{Name: "literalinclude", Argument: []string{"snippets/example.sh"}}
	dir.Span = entities.NewSpan(4)
	task := entities.PendingTask{
		Kind:  "literalinclude",
		Node:  dir,
		Path:  "snippets/example.sh",
		Extra: map[string]string{"start-after": "// start"},
	}
	page := entities.NewPage("index.txt", "")
	page.PendingTasks = []entities.PendingTask{task}

	diags := tracker.RunPendingTasks(page)
	require.Len(t, diags, 1)
	require.Equal(t, entities.KindInvalidLiteralInclude, diags[0].Kind)
}

func TestRunLiteralIncludeMemoizesByFileAndOptions(t *testing.T) {
	loader := newFakeLoader(map[entities.FileId][]byte{
		"snippets/example.sh": []byte("hello world\n"),
	})
	tracker := NewAssetTracker(loader)

	run := func() {
		dir := &entities.Directive{Name: "literalinclude", Argument: []string{"snippets/example.sh"}}
		dir.Span = entities.NewSpan(1)
		task := entities.PendingTask{Kind: "literalinclude", Node: dir, Path: "snippets/example.sh", Extra: map[string]string{}}
		page := entities.NewPage("index.txt", "")
		page.PendingTasks = []entities.PendingTask{task}
		tracker.RunPendingTasks(page)
	}
	run()
	run()
	require.Equal(t, 1, loader.calls["snippets/example.sh"], "second run with identical options should hit the cache")
}

func TestRunChecksumComputesAndRecordsStaticAsset(t *testing.T) {
	loader := newFakeLoader(map[entities.FileId][]byte{
		"diagrams/arch.png": []byte("pretend-png-bytes"),
	})
	tracker := NewAssetTracker(loader)

	page := entities.NewPage("index.txt", "")
	asset := entities.NewStaticAsset("diagrams/arch.png", "diagrams/arch.png", "diagrams/arch.png", true)
	page.StaticAssets.Add(asset)

	dir := &entities.Directive{Name: "figure", Argument: []string{"diagrams/arch.png"}, Options: map[string]entities.OptionValue{}}
	dir.Span = entities.NewSpan(1)
	task := entities.PendingTask{Kind: "checksum", Node: dir, Path: "diagrams/arch.png", Extra: map[string]string{"asset_key": "diagrams/arch.png"}}
	page.PendingTasks = []entities.PendingTask{task}

	diags := tracker.RunPendingTasks(page)
	require.Empty(t, diags)
	require.NotEmpty(t, dir.Options["checksum"].Raw)
	require.True(t, asset.Loaded())
}

func TestDependentsTracksPagesReferencingAnAsset(t *testing.T) {
	loader := newFakeLoader(map[entities.FileId][]byte{"diagrams/arch.png": []byte("x")})
	tracker := NewAssetTracker(loader)

	page := entities.NewPage("index.txt", "")
	asset := entities.NewStaticAsset("diagrams/arch.png", "diagrams/arch.png", "diagrams/arch.png", true)
	page.StaticAssets.Add(asset)

	tracker.RunPendingTasks(page)

	deps := tracker.Dependents("diagrams/arch.png")
	require.Len(t, deps, 1)
	require.Equal(t, entities.FileId("index.txt"), deps[0])
}
