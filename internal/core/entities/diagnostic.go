package entities

import "fmt"

// Severity is the level at which a Diagnostic is reported.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// DiagnosticKind identifies the specific condition a Diagnostic
// reports. The set mirrors spec.md §7; it is intentionally an open
// string type rather than a closed iota enum so that components can be
// extended (new directive-specific kinds) without touching this file.
type DiagnosticKind string

const (
	KindUnexpectedIndentation      DiagnosticKind = "UnexpectedIndentation"
	KindInvalidURL                 DiagnosticKind = "InvalidURL"
	KindExpectedPathArg            DiagnosticKind = "ExpectedPathArg"
	KindExpectedImgArg             DiagnosticKind = "ExpectedImgArg"
	KindOptionsNotSupported        DiagnosticKind = "OptionsNotSupported"
	KindGitMergeConflictArtifact   DiagnosticKind = "GitMergeConflictArtifactFound"
	KindDocUtilsParseError         DiagnosticKind = "DocUtilsParseError"
	KindErrorParsingYAMLFile       DiagnosticKind = "ErrorParsingYAMLFile"
	KindInvalidLiteralInclude      DiagnosticKind = "InvalidLiteralInclude"
	KindSubstitutionRefError       DiagnosticKind = "SubstitutionRefError"
	KindInvalidTableStructure      DiagnosticKind = "InvalidTableStructure"
	KindMissingOption              DiagnosticKind = "MissingOption"
	KindMissingRef                 DiagnosticKind = "MissingRef"
	KindFailedToInheritRef         DiagnosticKind = "FailedToInheritRef"
	KindRefAlreadyExists           DiagnosticKind = "RefAlreadyExists"
	KindUnknownSubstitution        DiagnosticKind = "UnknownSubstitution"
	KindTargetNotFound             DiagnosticKind = "TargetNotFound"
	KindAmbiguousTarget            DiagnosticKind = "AmbiguousTarget"
	KindTodoInfo                   DiagnosticKind = "TodoInfo"
	KindErrorLoadingFile           DiagnosticKind = "ErrorLoadingFile"
	KindCannotOpenFile             DiagnosticKind = "CannotOpenFile"
	KindMissingFacet               DiagnosticKind = "MissingFacet"
	KindConstantNotDeclared        DiagnosticKind = "ConstantNotDeclared"
	KindConfigurationProblem       DiagnosticKind = "ConfigurationProblem"
	KindUnsupportedFormat          DiagnosticKind = "UnsupportedFormat"
	KindUnknownOptionId            DiagnosticKind = "UnknownOptionId"
	KindInvalidOptionValue         DiagnosticKind = "InvalidOptionValue"
	KindMonospaceTwoBackticks      DiagnosticKind = "MonospaceTwoBackticks"
	KindCyclicInheritance          DiagnosticKind = "CyclicInheritance"
	KindInheritanceCycle           DiagnosticKind = "InheritanceCycle"
	KindShortTitleUnderline        DiagnosticKind = "ShortTitleUnderline"
)

// Diagnostic is a typed, positioned error/warning/info record. It is the
// sole channel for reporting recoverable problems found while parsing or
// postprocessing; a page with diagnostics still yields a best-effort AST.
type Diagnostic struct {
	Severity Severity       `json:"severity"`
	Kind     DiagnosticKind `json:"kind"`
	Message  string         `json:"message"`
	Start    Position       `json:"start"`
	End      *Position      `json:"end,omitempty"`
}

// NewDiagnostic constructs a Diagnostic starting at the given line.
func NewDiagnostic(severity Severity, kind DiagnosticKind, message string, line int) *Diagnostic {
	return &Diagnostic{
		Severity: severity,
		Kind:     kind,
		Message:  message,
		Start:    Position{Line: line},
	}
}

// Errorf builds an error-severity Diagnostic with a formatted message.
func Errorf(kind DiagnosticKind, line int, format string, args ...any) *Diagnostic {
	return NewDiagnostic(SeverityError, kind, fmt.Sprintf(format, args...), line)
}

// Warningf builds a warning-severity Diagnostic with a formatted message.
func Warningf(kind DiagnosticKind, line int, format string, args ...any) *Diagnostic {
	return NewDiagnostic(SeverityWarning, kind, fmt.Sprintf(format, args...), line)
}

// Infof builds an info-severity Diagnostic with a formatted message.
func Infof(kind DiagnosticKind, line int, format string, args ...any) *Diagnostic {
	return NewDiagnostic(SeverityInfo, kind, fmt.Sprintf(format, args...), line)
}

func (d *Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: [%s] %s", d.Severity, d.Start.Line, d.Kind, d.Message)
}

// Diagnostics is a collection of Diagnostic values with a few
// aggregate-level helpers used by the postprocessor and CLI reporter.
type Diagnostics []*Diagnostic

// HasErrors reports whether any diagnostic in the collection is
// error-severity.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CountBySeverity tallies diagnostics per severity level.
func (ds Diagnostics) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, d := range ds {
		counts[d.Severity]++
	}
	return counts
}
