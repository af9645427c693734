package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/madstone-tech/docpiler/internal/core/entities"
	"github.com/madstone-tech/docpiler/internal/core/usecases"
)

// Compile-time interface check
var _ usecases.ReportFormatter = (*ReportFormatter)(nil)

// ReportFormatter implements the usecases.ReportFormatter interface
// for CLI output formatting, coloring diagnostic severities with
// lipgloss/termenv when stdout is a TTY and falling back to plain text
// otherwise.
type ReportFormatter struct {
	errorStyle   lipgloss.Style
	warningStyle lipgloss.Style
	infoStyle    lipgloss.Style
	plain        bool
}

// NewReportFormatter creates a new ReportFormatter instance.
func NewReportFormatter() *ReportFormatter {
	plain := !isatty.IsTerminal(os.Stdout.Fd())
	profile := termenv.ColorProfile()
	if profile == termenv.Ascii {
		plain = true
	}
	return &ReportFormatter{
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warningStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		plain:        plain,
	}
}

// PrintDiagnostics prints every page's diagnostics to stdout, grouped
// and sorted by fileid for a deterministic report.
func (f *ReportFormatter) PrintDiagnostics(diags map[entities.FileId]entities.Diagnostics) {
	var errCount, warnCount, infoCount int

	fileids := make([]entities.FileId, 0, len(diags))
	for fileid, ds := range diags {
		if len(ds) == 0 {
			continue
		}
		fileids = append(fileids, fileid)
	}
	sort.Slice(fileids, func(i, j int) bool { return fileids[i] < fileids[j] })

	for _, fileid := range fileids {
		for _, d := range diags[fileid] {
			switch d.Severity {
			case entities.SeverityError:
				errCount++
			case entities.SeverityWarning:
				warnCount++
			default:
				infoCount++
			}
			fmt.Printf("  %s %s:%d — %s\n", f.severityLabel(d.Severity), fileid, d.Start.Line, d.Message)
		}
	}

	if errCount == 0 && warnCount == 0 && infoCount == 0 {
		fmt.Println("✓ No diagnostics")
		return
	}
	fmt.Printf("\n%d error(s), %d warning(s), %d info\n", errCount, warnCount, infoCount)
}

func (f *ReportFormatter) severityLabel(sev entities.Severity) string {
	label := fmt.Sprintf("[%s]", sev)
	if f.plain {
		return label
	}
	switch sev {
	case entities.SeverityError:
		return f.errorStyle.Render(label)
	case entities.SeverityWarning:
		return f.warningStyle.Render(label)
	default:
		return f.infoStyle.Render(label)
	}
}

// PrintBuildReport prints build statistics to stdout.
func (f *ReportFormatter) PrintBuildReport(stats usecases.BuildStats) {
	fmt.Println("Build complete:")
	fmt.Printf("  Pages parsed: %d\n", stats.PagesParsed)
	fmt.Printf("  Pages cached: %d\n", stats.PagesCached)
	fmt.Printf("  Errors: %d\n", stats.ErrorCount)
	fmt.Printf("  Warnings: %d\n", stats.WarningCount)
	fmt.Printf("  Duration: %s\n", stats.Duration.Round(time.Millisecond))
}
