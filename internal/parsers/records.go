package parsers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"
)

// recordEnvelopeKeys are the wrapper keys accepted around a record array.
var recordEnvelopeKeys = []string{"rows", "transactions", "records", "data", "items"}

// RecordsParser reads JSON exports into GenericRecord values. It accepts a
// top-level array, an object wrapping an array under a well-known key, or
// newline-delimited objects.
type RecordsParser struct {
	*BaseParser
}

// NewRecordsParser creates a RecordsParser over base.
func NewRecordsParser(base *BaseParser) *RecordsParser {
	return &RecordsParser{BaseParser: base}
}

// Parse reads filePath into GenericRecord values.
func (rp *RecordsParser) Parse(ctx context.Context, filePath string) ([]normalize.SourceRow, *ParseStats, error) {
	data, err := rp.ReadText(ctx, filePath)
	if err != nil {
		return nil, nil, err
	}
	return rp.ParseBytes(ctx, filePath, data)
}

// ParseBytes reads already loaded JSON.
func (rp *RecordsParser) ParseBytes(ctx context.Context, source string, data []byte) ([]normalize.SourceRow, *ParseStats, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewParseStats(), errors.IngestionError(errors.CodeSourceUnreadable, source, fmt.Errorf("file is empty"))
	}

	var (
		rows  []normalize.SourceRow
		stats *ParseStats
		err   error
	)
	switch trimmed[0] {
	case '[':
		rows, stats, err = rp.parseArray(source, trimmed)
	case '{':
		if rows, stats, err = rp.parseEnvelope(source, trimmed); err != nil {
			rows, stats, err = rp.parseLines(ctx, source, trimmed)
		}
	default:
		err = errors.IngestionError(errors.CodeUnsupportedFormat, source, fmt.Errorf("not a JSON document"))
	}
	if err != nil {
		return nil, stats, err
	}

	rp.logger.WithFields(logger.Fields{
		"source":  source,
		"records": stats.RecordsParsed,
		"errors":  stats.ErrorCount,
	}).Debug("Parsed JSON records")

	return rows, stats, nil
}

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (rp *RecordsParser) parseArray(source string, data []byte) ([]normalize.SourceRow, *ParseStats, error) {
	var raw []json.RawMessage
	if err := decodeJSON(data, &raw); err != nil {
		return nil, NewParseStats(), errors.IngestionError(errors.CodeSourceUnreadable, source, err)
	}
	rows, stats := rp.collect(raw)
	return rows, stats, nil
}

func (rp *RecordsParser) parseEnvelope(source string, data []byte) ([]normalize.SourceRow, *ParseStats, error) {
	var envelope map[string]json.RawMessage
	if err := decodeJSON(data, &envelope); err != nil {
		return nil, NewParseStats(), errors.IngestionError(errors.CodeSourceUnreadable, source, err)
	}
	for _, key := range recordEnvelopeKeys {
		inner, ok := envelope[key]
		if !ok {
			continue
		}
		var raw []json.RawMessage
		if err := decodeJSON(inner, &raw); err != nil {
			return nil, NewParseStats(), errors.IngestionError(errors.CodeSourceUnreadable, source, err)
		}
		rows, stats := rp.collect(raw)
		return rows, stats, nil
	}
	return nil, NewParseStats(), errors.IngestionError(errors.CodeUnsupportedFormat, source,
		fmt.Errorf("object has none of the record keys %v", recordEnvelopeKeys))
}

// parseLines handles newline-delimited JSON objects.
func (rp *RecordsParser) parseLines(ctx context.Context, source string, data []byte) ([]normalize.SourceRow, *ParseStats, error) {
	stats := NewParseStats()
	var rows []normalize.SourceRow

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, stats, errors.InternalError(errors.CodeUnexpectedError, "json_parsing", err)
		}
		stats.TotalLines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			stats.Skipped++
			continue
		}
		var values map[string]interface{}
		if err := decodeJSON(line, &values); err != nil {
			stats.AddError(&ParseError{Line: stats.TotalLines, Message: "invalid JSON object", Err: err})
			continue
		}
		rows = append(rows, normalize.GenericRecord{Index: stats.TotalLines, Values: values})
		stats.RecordsParsed++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, errors.IngestionError(errors.CodeSourceUnreadable, source, err)
	}
	if stats.RecordsParsed == 0 && stats.HasErrors() {
		return nil, stats, errors.IngestionError(errors.CodeSourceUnreadable, source, stats.Errors[0])
	}
	return rows, stats, nil
}

func (rp *RecordsParser) collect(raw []json.RawMessage) ([]normalize.SourceRow, *ParseStats) {
	stats := NewParseStats()
	rows := make([]normalize.SourceRow, 0, len(raw))
	for i, item := range raw {
		stats.TotalLines++
		var values map[string]interface{}
		if err := decodeJSON(item, &values); err != nil {
			stats.AddError(&ParseError{Line: i + 1, Message: "record is not an object", Err: err})
			continue
		}
		rows = append(rows, normalize.GenericRecord{Index: i + 1, Values: values})
		stats.RecordsParsed++
	}
	return rows, stats
}
