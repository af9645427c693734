package usecases

import (
	"context"
	"time"

	"github.com/madstone-tech/docpiler/internal/core/entities"
)

// Logger is the structured-logging port the adapter layer implements
// (spec.md's ambient stack — every build/watch run logs through this).
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, err error, keysAndValues ...any)
	WithFields(keysAndValues ...any) Logger
	WithContext(ctx context.Context) Logger
}

// ProgressReporter surfaces build/watch progress to the CLI.
type ProgressReporter interface {
	ReportProgress(step string, current, total int, message string)
	ReportError(err error)
	ReportSuccess(message string)
	ReportInfo(message string)
}

// ReportFormatter renders a finished build or validation run for the
// console.
type ReportFormatter interface {
	PrintDiagnostics(diags map[entities.FileId]entities.Diagnostics)
	PrintBuildReport(stats BuildStats)
}

// BuildStats summarizes one completed build for reporting.
type BuildStats struct {
	PagesParsed  int
	PagesCached  int
	ErrorCount   int
	WarningCount int
	Duration     time.Duration
}

// ConfigLoader reads/writes a project's declarative TOML configuration
// (spec.md §6's "Project config").
type ConfigLoader interface {
	LoadConfig(ctx context.Context, projectRoot string) (*entities.ProjectConfig, error)
	SaveConfig(ctx context.Context, projectRoot string, config *entities.ProjectConfig) error
}

// FileChangeEvent is one debounced filesystem change surfaced by a
// FileWatcher (spec.md §5 "filesystem watches run on a dedicated
// observer thread and feed changes through a de-duplicating queue").
type FileChangeEvent struct {
	Path string
	Op   string // "create" | "write" | "remove" | "rename"
}

// FileWatcher observes a project's source tree for changes to pages,
// giza documents, and static assets.
type FileWatcher interface {
	Watch(ctx context.Context, rootPath string) (<-chan FileChangeEvent, error)
	Stop() error
}

// PathResolver resolves the XDG-style directories docpiler uses for
// global config, the persisted parse cache, and downloaded themes.
type PathResolver interface {
	ConfigDir() string
	DataDir() string
	CacheDir() string
	ConfigFile() string
	EnsureDir(path string) error
}

// IntersphinxFetcher retrieves a raw intersphinx inventory byte stream
// for a configured URL; the core only decodes the bytes it returns
// (spec.md §9 "no network fetching beyond treating a fetched inventory
// byte stream as an opaque decode input").
type IntersphinxFetcher interface {
	Fetch(url string) ([]byte, error)
}

// AssetLoader reads the bytes of a static asset referenced from a page
// (an image, a literal-included file) so the core can compute its
// checksum and, if requested, stage it for upload.
type AssetLoader interface {
	Load(fileid entities.FileId) ([]byte, error)
}

// PageSink receives postprocessed pages and deletions as the build
// driver applies them (spec.md §6 "Results to sinks").
type PageSink interface {
	OnPageUpdate(prefixPath []string, fileid entities.FileId, page *entities.Page)
	OnPageDelete(fileid entities.FileId)
	OnMetadata(meta any)
}
