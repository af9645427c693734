package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/madstone-tech/docpiler/internal/adapters/filesystem"
	"github.com/madstone-tech/docpiler/internal/core/target"
	"github.com/madstone-tech/docpiler/internal/core/usecases"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Build once, then rebuild on every source change",
		RunE: func(c *cobra.Command, args []string) error {
			return runWatch(c.Context())
		},
	}
}

func runWatch(ctx context.Context) error {
	progress, formatter := newReporters()
	logger := newLogger()

	root := resolvedProjectRoot()
	projectConfig, err := newConfigLoader().LoadConfig(ctx, root)
	if err != nil {
		fail(progress, fmt.Errorf("loading project config: %w", err))
		return err
	}

	spec, specText, err := loadSpec(root, resolvedSpecPath())
	if err != nil {
		fail(progress, err)
		return err
	}

	parseCache, err := loadParseCache(root, projectConfig, specText)
	if err != nil {
		fail(progress, fmt.Errorf("loading parse cache: %w", err))
		return err
	}

	sourceRoot := filepath.Join(root, projectConfig.Source)
	reader := filesystem.NewReader(sourceRoot)
	pp := usecases.NewParseProject(spec, projectConfig, target.NewDatabase(), reader, logger)
	pp.Cache = parseCache
	defer pp.Pages.Close()

	// Every rebuild reuses the same cache instance: a source file
	// unchanged since the last pass hits instead of re-parsing, and
	// each pass's fresh results extend the cache for the next one.
	rebuild := func() {
		files, err := reader.WalkSources()
		if err != nil {
			progress.ReportError(fmt.Errorf("reading source tree: %w", err))
			return
		}
		result, _, err := pp.Build(ctx, files)
		if err != nil {
			progress.ReportError(fmt.Errorf("rebuild failed: %w", err))
			return
		}
		if err := persistParseCache(root, parseCache); err != nil {
			logger.Error("persisting parse cache", err)
		}
		formatter.PrintDiagnostics(result.Diagnostics)
		progress.ReportSuccess("rebuilt")
	}

	rebuild()

	watcher, err := filesystem.NewFileWatcher()
	if err != nil {
		fail(progress, fmt.Errorf("starting watcher: %w", err))
		return err
	}
	defer watcher.Stop()

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events, err := watcher.Watch(sigCtx, sourceRoot)
	if err != nil {
		fail(progress, fmt.Errorf("watching %q: %w", sourceRoot, err))
		return err
	}

	progress.ReportInfo(fmt.Sprintf("watching %s for changes", sourceRoot))
	for {
		select {
		case <-sigCtx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			progress.ReportProgress("watch", 0, 0, fmt.Sprintf("%s %s", evt.Op, evt.Path))
			rebuild()
		}
	}
}
