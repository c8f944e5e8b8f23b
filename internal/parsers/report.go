package parsers

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"unicode"

	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"
)

// ReportParser splits loosely structured report text into lines. Lines
// without any digit cannot carry a date or an amount and are skipped.
type ReportParser struct {
	*BaseParser
}

// NewReportParser creates a ReportParser over base.
func NewReportParser(base *BaseParser) *ReportParser {
	return &ReportParser{BaseParser: base}
}

// Parse reads filePath into ReportLine values.
func (rp *ReportParser) Parse(ctx context.Context, filePath string) ([]normalize.SourceRow, *ParseStats, error) {
	data, err := rp.ReadText(ctx, filePath)
	if err != nil {
		return nil, nil, err
	}
	return rp.ParseBytes(ctx, filePath, data)
}

// ParseBytes reads already loaded report text.
func (rp *ReportParser) ParseBytes(ctx context.Context, source string, data []byte) ([]normalize.SourceRow, *ParseStats, error) {
	stats := NewParseStats()
	var rows []normalize.SourceRow

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, stats, errors.InternalError(errors.CodeUnexpectedError, "report_parsing", err)
		}
		stats.TotalLines++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.IndexFunc(text, unicode.IsDigit) < 0 {
			stats.Skipped++
			continue
		}
		rows = append(rows, normalize.ReportLine{Line: stats.TotalLines, Text: text})
		stats.RecordsParsed++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, errors.IngestionError(errors.CodeSourceUnreadable, source, err)
	}

	rp.logger.WithFields(logger.Fields{
		"source":  source,
		"lines":   stats.TotalLines,
		"records": stats.RecordsParsed,
	}).Debug("Parsed report text")

	return rows, stats, nil
}
