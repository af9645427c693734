package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/madstone-tech/docpiler/internal/adapters/filesystem"
	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/target"
	"github.com/madstone-tech/docpiler/internal/core/usecases"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse the project and report diagnostics without writing any build state",
		RunE: func(c *cobra.Command, args []string) error {
			return runValidate(c.Context())
		},
	}
}

func runValidate(ctx context.Context) error {
	progress, formatter := newReporters()
	logger := newLogger()

	root := resolvedProjectRoot()
	projectConfig, err := newConfigLoader().LoadConfig(ctx, root)
	if err != nil {
		fail(progress, fmt.Errorf("loading project config: %w", err))
		return err
	}

	spec, _, err := loadSpec(root, resolvedSpecPath())
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

	pp := usecases.NewParseProject(spec, projectConfig, target.NewDatabase(), reader, logger)
	defer pp.Pages.Close()

	pp.ParseSources(ctx, files)

	byFile := map[entities.FileId]entities.Diagnostics{}
	for _, fileid := range pp.Pages.FileIds() {
		if entry, ok := pp.Pages.Get(fileid); ok {
			byFile[fileid] = entry.Diagnostics
		}
	}
	formatter.PrintDiagnostics(byFile)

	errCount, _ := countSeverities(byFile)
	if errCount > 0 {
		return fmt.Errorf("validation found %d error(s)", errCount)
	}
	progress.ReportSuccess("validation passed")
	return nil
}
