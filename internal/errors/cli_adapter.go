package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
)

// Process exit codes reported by the CLI.
const (
	ExitGeneral     = 1
	ExitConfig      = 7
	ExitInternal    = 10
	ExitBuild       = 11
	ExitWatch       = 12
	ExitInterrupted = 130
)

var exitCodes = map[ErrorCategory]int{
	CategoryConfig:     ExitConfig,
	CategoryCompile:    ExitBuild,
	CategoryAssetIO:    ExitBuild,
	CategoryFileSystem: ExitBuild,
	// specifier and auxiliary errors are warnings unless a caller escalates them
	CategorySpecifier: ExitBuild,
	CategoryAuxiliary: ExitBuild,
	CategoryWatch:     ExitWatch,
	CategoryInternal:  ExitInternal,
}

// subjectKeys name the context entry that identifies what an error is about.
var subjectKeys = map[ErrorCategory]string{
	CategoryCompile:    "entry",
	CategoryAssetIO:    "path",
	CategoryFileSystem: "operation",
	CategorySpecifier:  "specifier",
	CategoryAuxiliary:  "stage",
}

// CLIErrorAdapter turns errors returned by commands into a message on stderr
// and a process exit code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		out:     os.Stderr,
		exit:    os.Exit,
	}
}

// ExitCodeFor determines the exit code for err. Interrupted runs exit 130.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if be, ok := As(err); ok {
		if code, ok := exitCodes[be.Category]; ok {
			return code
		}
		return ExitGeneral
	}
	if stdErrors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	return ExitGeneral
}

// FormatError renders err as a single line for the terminal.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := As(err); ok {
		return a.formatBuildError(be)
	}
	if stdErrors.Is(err, context.Canceled) {
		return "interrupted"
	}
	return fmt.Sprintf("Error: %v", err)
}

func (a *CLIErrorAdapter) formatBuildError(err *BuildError) string {
	if a.verbose {
		return err.Error()
	}
	if err.Category == CategoryConfig {
		return err.Message
	}
	msg := err.Message
	if key, ok := subjectKeys[err.Category]; ok {
		if subject, ok := err.Context[key]; ok {
			msg = fmt.Sprintf("%s (%s)", msg, subject)
		}
	}
	if err.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", err.Category, msg, err.Cause)
	}
	return fmt.Sprintf("%s: %s", err.Category, msg)
}

// HandleError prints err, logs it when useful and exits with its code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if a.shouldLog(err) {
		a.logError(err)
	}
	_, _ = fmt.Fprintln(a.out, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

// shouldLog selects errors whose structured context is worth a log record
// next to the one-line message: internal, watch and unclassified failures,
// and escalated non-fatal errors. Interruptions are never logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}
	if stdErrors.Is(err, context.Canceled) {
		return false
	}
	if _, ok := As(err); ok && !IsFatal(err) {
		return true
	}
	switch GetCategory(err) {
	case CategoryInternal, CategoryWatch:
		return true
	default:
		return false
	}
}

func (a *CLIErrorAdapter) logError(err error) {
	be, ok := As(err)
	if !ok {
		a.logger.Error("Unclassified error", slog.String("error", err.Error()))
		return
	}
	attrs := []slog.Attr{slog.String("category", string(be.Category))}
	for _, k := range slices.Sorted(maps.Keys(be.Context)) {
		attrs = append(attrs, slog.Any(k, be.Context[k]))
	}
	if be.Cause != nil {
		attrs = append(attrs, slog.String("error", be.Cause.Error()))
	}
	a.logger.LogAttrs(context.Background(), slogLevelFromSeverity(be.Severity), be.Message, attrs...)
}

func slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
