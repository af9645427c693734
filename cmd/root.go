// Package cmd implements the docpiler command-line front end: the
// cobra command tree plus a DOCPILER_*-prefixed viper env-override
// layer over docpiler.toml. This is the only place in the module that
// calls viper directly — internal/adapters/config.Loader stays
// viper-free so the core build pipeline has no CLI-layer dependency.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/madstone-tech/docpiler/internal/adapters/cli"
	"github.com/madstone-tech/docpiler/internal/adapters/config"
	"github.com/madstone-tech/docpiler/internal/adapters/logging"
)

var (
	projectRoot string
	specPath    string
	logLevel    string
)

// NewRootCommand builds the docpiler cobra command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "docpiler",
		Short: "docpiler builds a reStructuredText documentation project into a parsed page database",
	}

	root.PersistentFlags().StringVar(&projectRoot, "project", ".", "project root directory")
	root.PersistentFlags().StringVar(&specPath, "spec", "docpiler-spec.toml", "path to the directive/role spec TOML, relative to --project")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	viper.SetEnvPrefix("DOCPILER")
	viper.AutomaticEnv()
	viper.BindPFlag("project", root.PersistentFlags().Lookup("project"))
	viper.BindPFlag("spec", root.PersistentFlags().Lookup("spec"))
	viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newBuildCommand())
	root.AddCommand(newWatchCommand())
	root.AddCommand(newValidateCommand())

	return root
}

func resolvedProjectRoot() string {
	if v := viper.GetString("project"); v != "" {
		return v
	}
	return projectRoot
}

func resolvedSpecPath() string {
	if v := viper.GetString("spec"); v != "" {
		return v
	}
	return specPath
}

func newLogger() *logging.Logger {
	level := logging.LevelInfo
	switch viper.GetString("log-level") {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(level)
}

func newReporters() (*cli.ProgressReporter, *cli.ReportFormatter) {
	return cli.NewProgressReporter(), cli.NewReportFormatter()
}

func newConfigLoader() *config.Loader {
	return config.NewLoader(config.NewXDGPathResolver().ConfigFile())
}

// fail reports err through the progress reporter; the caller still
// returns err so cobra's RunE propagates the non-zero exit to main.
func fail(progress *cli.ProgressReporter, err error) {
	progress.ReportError(err)
}
