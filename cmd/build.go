package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/madstone-tech/docpiler/internal/adapters/filesystem"
	"github.com/madstone-tech/docpiler/internal/core/cache"
	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/specdsl"
	"github.com/madstone-tech/docpiler/internal/core/target"
	"github.com/madstone-tech/docpiler/internal/core/usecases"
)

func newBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Parse and postprocess the project once",
		RunE: func(c *cobra.Command, args []string) error {
			return runBuild(c.Context())
		},
	}
}

func runBuild(ctx context.Context) error {
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

	sourceRoot := filepath.Join(root, projectConfig.Source)
	reader := filesystem.NewReader(sourceRoot)
	files, err := reader.WalkSources()
	if err != nil {
		fail(progress, fmt.Errorf("reading source tree: %w", err))
		return err
	}
	logger.Info("source tree read", "files", len(files))
	progress.ReportProgress("build", 0, 3, fmt.Sprintf("found %d source files", len(files)))

	parseCache, err := loadParseCache(root, projectConfig, specText)
	if err != nil {
		fail(progress, fmt.Errorf("loading parse cache: %w", err))
		return err
	}

	start := time.Now()
	pp := usecases.NewParseProject(spec, projectConfig, target.NewDatabase(), reader, logger)
	pp.Cache = parseCache
	defer pp.Pages.Close()

	progress.ReportProgress("build", 1, 3, "parsing")
	result, _, err := pp.Build(ctx, files)
	if err != nil {
		fail(progress, fmt.Errorf("build failed: %w", err))
		return err
	}

	if err := persistParseCache(root, parseCache); err != nil {
		logger.Error("persisting parse cache", err)
	}

	progress.ReportProgress("build", 2, 3, "postprocessing complete")
	formatter.PrintDiagnostics(result.Diagnostics)

	errCount, warnCount := countSeverities(result.Diagnostics)
	formatter.PrintBuildReport(usecases.BuildStats{
		PagesParsed:  pp.Pages.Len(),
		PagesCached:  pp.CacheHits(),
		ErrorCount:   errCount,
		WarningCount: warnCount,
		Duration:     time.Since(start),
	})
	progress.ReportSuccess("build complete")
	return nil
}

func countSeverities(diags map[entities.FileId]entities.Diagnostics) (errCount, warnCount int) {
	for _, ds := range diags {
		for _, d := range ds {
			switch d.Severity {
			case entities.SeverityError:
				errCount++
			case entities.SeverityWarning:
				warnCount++
			}
		}
	}
	return errCount, warnCount
}

func loadSpec(root, specPath string) (*specdsl.Spec, string, error) {
	path := specPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, specPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading spec TOML %q: %w", path, err)
	}
	spec, err := specdsl.Load(string(data))
	if err != nil {
		return nil, "", fmt.Errorf("loading spec TOML %q: %w", path, err)
	}
	return spec, string(data), nil
}

// cacheDir is the project-local, watcher-ignored directory (spec.md §4.8)
// that holds the persisted parse cache.
func cacheDir(root string) string {
	return filepath.Join(root, ".docpiler")
}

// cachePath is the parse cache's fixed file location under cacheDir.
func cachePath(root string) string {
	return filepath.Join(cacheDir(root), "parsecache.gob")
}

// loadParseCache opens the on-disk parse cache, discarding it (returning
// a fresh empty one) if it's missing, corrupt, or was built against a
// different config/spec/schema version (spec.md §4.8).
func loadParseCache(root string, config *entities.ProjectConfig, specText string) (*cache.Cache, error) {
	specifier, err := cache.CurrentSpecifier(config, specText)
	if err != nil {
		return nil, fmt.Errorf("hashing project config: %w", err)
	}
	return cache.Load(cachePath(root), specifier), nil
}

// persistParseCache writes the parse cache back to disk, creating its
// containing directory on first use.
func persistParseCache(root string, c *cache.Cache) error {
	if err := os.MkdirAll(cacheDir(root), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return c.Persist(cachePath(root))
}
