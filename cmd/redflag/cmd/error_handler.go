package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a CLI error handler writing to out.
func NewCLIErrorHandler(out io.Writer, verbose bool) *CLIErrorHandler {
	return &CLIErrorHandler{
		out:     out,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError prints err and returns the process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	var summary *errors.ErrorSummary
	if stderrors.As(err, &summary) {
		return h.handleErrorSummary(summary)
	}
	if rfErr, ok := errors.AsRedflagError(err); ok {
		return h.handleRedflagError(rfErr)
	}
	return h.handleGenericError(err)
}

// summaryCategories fixes the order help is printed in for a summary.
var summaryCategories = []errors.ErrorCategory{
	errors.CategoryIngestion,
	errors.CategoryNormalization,
	errors.CategoryValidation,
	errors.CategoryConfiguration,
	errors.CategoryDetector,
	errors.CategoryPersistence,
	errors.CategoryInternal,
}

func (h *CLIErrorHandler) handleErrorSummary(summary *errors.ErrorSummary) int {
	fmt.Fprintf(h.out, "Error: %d operations failed\n\n", summary.Total)
	for _, err := range summary.Errors {
		fmt.Fprintf(h.out, "  • %s\n", err.Message)
		if h.verbose && err.Cause != nil {
			fmt.Fprintf(h.out, "    Underlying error: %v\n", err.Cause)
		}
	}

	for _, category := range summaryCategories {
		if summary.HasCategory(category) {
			fmt.Fprintf(h.out, "\n%s\n", categoryHelp(category))
		}
	}

	return summary.GetExitCode()
}

func (h *CLIErrorHandler) handleRedflagError(err *errors.RedflagError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", categoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more details\n")
	}
	return 1
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryIngestion:
		return `Ingestion error help:
• Check that the evidence file exists and is readable
• Supported extensions: .csv .tsv .json .jsonl .ndjson .txt .log
• Delimited files need a header row naming at least a date or an amount column
• PDF and spreadsheet exports must be converted to CSV first`

	case errors.CategoryNormalization:
		return `Normalization error help:
• Dates may use DD/MM/YYYY, YYYY-MM-DD or ISO 8601 timestamps
• Amounts may use Brazilian (1.234,56) or plain (1234.56) notation
• Use --verbose to see which rows were defaulted or dropped`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required flags and fields have values
• Rule parameters must be numbers where a threshold or window is expected
• Use 'redflag rules' to see a valid rule book`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and REDFLAG_ environment variables
• Verify configuration file syntax if using --config
• Verify rule book syntax if using --rules`

	case errors.CategoryDetector:
		return `Detector error help:
• A rule failed while the others completed; see the report's failed rules
• Try disabling the failing rule in the rule book`

	case errors.CategoryPersistence:
		return `Storage error help:
• Check that the case store is reachable (REDFLAG_STORE_DSN)
• Ingest evidence for the case before analyzing it`

	default:
		return `For more help:
• Use 'redflag --help' for general help
• Use 'redflag analyze --help' for command-specific help`
	}
}

func isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}
