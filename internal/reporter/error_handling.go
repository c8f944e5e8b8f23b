package reporter

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"golang-redflag-service/internal/analyzer"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/spf13/afero"
)

// SafeReportGenerator wraps ReportGenerator with logging, typed errors and a
// console fallback when the requested format cannot be rendered.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders report into memory first, so writer never
// receives a half-rendered document. If rendering fails in JSON or CSV the
// console format is tried before giving up.
func (srg *SafeReportGenerator) GenerateReportSafely(report *analyzer.Report, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil).
			WithSuggestion("Run the analysis before generating a report")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}

	log := srg.logger.WithFields(logger.Fields{
		"case_id": report.CaseID,
		"format":  srg.config.Format,
	})
	log.Debug("Starting report generation")

	var buf bytes.Buffer
	err := srg.GenerateReport(report, &buf)
	if err != nil && srg.config.Format != FormatConsole {
		log.WithError(err).Warn("Report generation failed, attempting console fallback")
		buf.Reset()
		if fbErr := srg.generateFallback(report, &buf, err); fbErr != nil {
			return srg.wrapGenerationError(fmt.Errorf("primary=%v, fallback=%w", err, fbErr))
		}
		err = nil
	}
	if err != nil {
		return srg.wrapGenerationError(err)
	}

	if _, err := buf.WriteTo(writer); err != nil {
		return srg.wrapGenerationError(err)
	}

	log.Debug("Report generation completed")
	return nil
}

func (srg *SafeReportGenerator) generateFallback(report *analyzer.Report, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return err
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	return fallbackGenerator.GenerateReport(report, writer)
}

// WriteReportFile renders report into path on fs. When path cannot be
// created the report goes to a sibling "_backup" file and that path is
// returned.
func (srg *SafeReportGenerator) WriteReportFile(fs afero.Fs, path string, report *analyzer.Report) (string, error) {
	file, err := fs.Create(path)
	if err != nil {
		backup := backupPath(path)
		srg.logger.WithError(err).WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backup,
		}).Warn("Attempting output fallback")

		file, err = fs.Create(backup)
		if err != nil {
			return "", srg.wrapGenerationError(err)
		}
		path = backup
	}

	genErr := srg.GenerateReportSafely(report, file)
	closeErr := file.Close()
	if genErr != nil {
		return "", genErr
	}
	if closeErr != nil {
		return "", srg.wrapGenerationError(closeErr)
	}
	return path, nil
}

func backupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if redflagErr, ok := errors.AsRedflagError(err); ok {
		return redflagErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}
