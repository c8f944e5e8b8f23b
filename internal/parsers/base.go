// Package parsers extracts row-like records from exported evidence files.
//
// Each parser turns one file into normalize.SourceRow values without
// interpreting them; field mapping and defaulting belong to the normalize
// package. Files are read through an afero.Fs so callers can swap the OS
// filesystem for an in-memory one.
//
// Supported containers:
//   - Delimited text (.csv, .tsv): header-keyed DelimitedRow values, with the
//     delimiter sniffed from the header line when not configured
//   - JSON records (.json, .jsonl, .ndjson): GenericRecord values
//   - Report text (.txt, .log): one ReportLine per non-blank line
//
// Binary containers such as PDF or spreadsheets must be converted by an
// external step; they are rejected with an unsupported_format error.
//
// Example usage:
//
//	reader := NewReader(afero.NewOsFs(), nil)
//	source, err := reader.Read(ctx, "extrato.csv")
//	result, err := normalizer.Normalize(normalize.Batch{
//		CaseID:     "CASE-1",
//		EvidenceID: source.EvidenceID,
//		Rows:       source.Rows,
//	})
//
// Legacy exports in Windows-1252 are transcoded to UTF-8 before parsing.
package parsers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/charmap"
)

// ParseError represents an error that occurred while reading one record
type ParseError struct {
	Line    int
	Column  int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s: %v",
			e.Line, e.Column, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s",
		e.Line, e.Column, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for reading evidence files
type ParseConfig struct {
	HasHeader bool `mapstructure:"has_header"`
	// Delimiter of 0 sniffs the delimiter from the header line.
	Delimiter        rune     `mapstructure:"delimiter"`
	Comment          rune     `mapstructure:"comment"`
	TrimLeadingSpace bool     `mapstructure:"trim_leading_space"`
	SkipEmptyRows    bool     `mapstructure:"skip_empty_rows"`
	MaxFileSize      int64    `mapstructure:"max_file_size"`
	Columns          []string `mapstructure:"columns"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        0,
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFileSize:      64 << 20,
	}
}

// BaseParser provides file access shared by every parser
type BaseParser struct {
	fs     afero.Fs
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser reading from fs
func NewBaseParser(fs afero.Fs, config *ParseConfig) *BaseParser {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("parsers")
	log.WithFields(logger.Fields{
		"has_header":    config.HasHeader,
		"delimiter":     string(config.Delimiter),
		"max_file_size": config.MaxFileSize,
	}).Debug("Created base parser")

	return &BaseParser{
		fs:     fs,
		config: config,
		logger: log,
	}
}

// ReadText loads a file as UTF-8 text, stripping a byte order mark and
// transcoding Windows-1252 content.
func (bp *BaseParser) ReadText(ctx context.Context, filePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "read_source", err)
	}

	bp.logger.WithField("file_path", filePath).Debug("Opening evidence file")

	info, err := bp.fs.Stat(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to stat evidence file")
		return nil, errors.IngestionError(errors.CodeSourceUnreadable, filePath, err)
	}
	if info.IsDir() {
		return nil, errors.IngestionError(errors.CodeSourceUnreadable, filePath, fmt.Errorf("is a directory"))
	}
	if bp.config.MaxFileSize > 0 && info.Size() > bp.config.MaxFileSize {
		return nil, errors.IngestionError(errors.CodeSourceUnreadable, filePath,
			fmt.Errorf("file size %d exceeds limit of %d bytes", info.Size(), bp.config.MaxFileSize))
	}

	data, err := afero.ReadFile(bp.fs, filePath)
	if err != nil {
		if os.IsPermission(err) {
			bp.logger.WithError(err).WithField("file_path", filePath).Error("Permission denied")
		}
		return nil, errors.IngestionError(errors.CodeSourceUnreadable, filePath, err)
	}

	return bp.decodeText(filePath, data)
}

func (bp *BaseParser) decodeText(filePath string, data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return data, nil
	}

	bp.logger.WithField("file_path", filePath).Debug("Transcoding Windows-1252 content to UTF-8")
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, errors.IngestionError(errors.CodeSourceUnreadable, filePath, err).
			WithSuggestion("save the file in UTF-8 encoding and try again")
	}
	return decoded, nil
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	Skipped       int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Read %d lines, %d records (%d skipped), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.Skipped, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	var samples []string
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}

	return samples
}
