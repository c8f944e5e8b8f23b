package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"
)

// DelimitedParser reads CSV/TSV exports into header-keyed rows.
type DelimitedParser struct {
	*BaseParser
}

// NewDelimitedParser creates a DelimitedParser over base.
func NewDelimitedParser(base *BaseParser) *DelimitedParser {
	return &DelimitedParser{BaseParser: base}
}

// Parse reads filePath into DelimitedRow values.
func (dp *DelimitedParser) Parse(ctx context.Context, filePath string) ([]normalize.SourceRow, *ParseStats, error) {
	data, err := dp.ReadText(ctx, filePath)
	if err != nil {
		return nil, nil, err
	}
	return dp.ParseBytes(ctx, filePath, data)
}

// ParseBytes reads already loaded delimited text. source names the input in
// errors and logs.
func (dp *DelimitedParser) ParseBytes(ctx context.Context, source string, data []byte) ([]normalize.SourceRow, *ParseStats, error) {
	stats := NewParseStats()

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = dp.config.Delimiter
	if reader.Comma == 0 {
		reader.Comma = sniffDelimiter(data)
	}
	reader.Comment = dp.config.Comment
	reader.TrimLeadingSpace = dp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := dp.readHeaders(reader, source, stats)
	if err != nil {
		return nil, stats, err
	}

	var rows []normalize.SourceRow
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := stats.TotalLines + 1
			var perr *csv.ParseError
			if stderrors.As(err, &perr) {
				line = perr.Line
			}
			stats.TotalLines = line
			dp.logger.WithError(err).WithField("line_number", line).Warn("Failed to read CSV record")
			stats.AddError(&ParseError{Line: line, Message: "malformed record", Err: err})
			continue
		}
		line, _ := reader.FieldPos(0)
		stats.TotalLines = line

		if dp.config.SkipEmptyRows && isEmptyRecord(record) {
			stats.Skipped++
			continue
		}

		fields := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) && header != "" {
				fields[header] = strings.TrimSpace(record[i])
			}
		}
		if len(record) > len(headers) {
			stats.AddError(&ParseError{
				Line:    line,
				Column:  len(headers),
				Message: fmt.Sprintf("record has %d fields, header has %d", len(record), len(headers)),
			})
		}

		rows = append(rows, normalize.DelimitedRow{Line: line, Fields: fields})
		stats.RecordsParsed++
	}

	dp.logger.WithFields(logger.Fields{
		"source":  source,
		"records": stats.RecordsParsed,
		"errors":  stats.ErrorCount,
	}).Debug("Parsed delimited source")

	return rows, stats, nil
}

// readHeaders reads the header row and checks that it names at least a date
// or an amount column.
func (dp *DelimitedParser) readHeaders(reader *csv.Reader, source string, stats *ParseStats) ([]string, error) {
	if !dp.config.HasHeader {
		if len(dp.config.Columns) == 0 {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "parsers.columns", nil,
				fmt.Errorf("columns are required when the source has no header"))
		}
		return dp.config.Columns, nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.IngestionError(errors.CodeMissingColumn, source, fmt.Errorf("file is empty"))
		}
		return nil, errors.IngestionError(errors.CodeSourceUnreadable, source, err)
	}
	stats.TotalLines = 1

	cleaned := make([]string, len(headers))
	recognized := false
	for i, h := range headers {
		cleaned[i] = strings.TrimSpace(h)
		switch normalize.CanonicalColumn(cleaned[i]) {
		case "date", "amount":
			recognized = true
		}
	}
	if !recognized {
		dp.logger.WithField("headers", cleaned).Error("No date or amount column in header")
		return nil, errors.IngestionError(errors.CodeMissingColumn, source,
			fmt.Errorf("headers %v", cleaned))
	}

	return cleaned, nil
}

// sniffDelimiter picks the most frequent candidate on the first line.
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}

	best, bestCount := ',', 0
	for _, candidate := range []rune{';', ',', '\t', '|'} {
		if n := bytes.Count(first, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}
