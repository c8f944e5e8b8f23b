package parsers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/spf13/afero"
)

// Format identifies a supported evidence container.
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatRecords   Format = "records"
	FormatReport    Format = "report"
)

var formatByExtension = map[string]Format{
	".csv":    FormatDelimited,
	".tsv":    FormatDelimited,
	".json":   FormatRecords,
	".jsonl":  FormatRecords,
	".ndjson": FormatRecords,
	".txt":    FormatReport,
	".log":    FormatReport,
}

// DetectFormat picks a parser from the file extension. Containers that need
// an external decoding step, such as PDF or spreadsheets, are rejected.
func DetectFormat(filePath string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if f, ok := formatByExtension[ext]; ok {
		return f, nil
	}
	return "", errors.IngestionError(errors.CodeUnsupportedFormat, filePath,
		fmt.Errorf("extension %q is not supported", ext))
}

// Source is the row content of one evidence file.
type Source struct {
	EvidenceID string
	Format     Format
	Rows       []normalize.SourceRow
	Stats      *ParseStats
}

// Reader dispatches files to the parser for their format.
type Reader struct {
	delimited *DelimitedParser
	records   *RecordsParser
	report    *ReportParser
	logger    logger.Logger
}

// NewReader creates a Reader over fs. A nil config uses DefaultParseConfig.
func NewReader(fs afero.Fs, config *ParseConfig) *Reader {
	base := NewBaseParser(fs, config)
	return &Reader{
		delimited: NewDelimitedParser(base),
		records:   NewRecordsParser(base),
		report:    NewReportParser(base),
		logger:    base.logger,
	}
}

// Read extracts rows from filePath. The evidence id is the file's base name.
func (r *Reader) Read(ctx context.Context, filePath string) (*Source, error) {
	format, err := DetectFormat(filePath)
	if err != nil {
		r.logger.WithError(err).WithField("file_path", filePath).Warn("Rejected evidence file")
		return nil, err
	}

	var (
		rows  []normalize.SourceRow
		stats *ParseStats
	)
	switch format {
	case FormatDelimited:
		rows, stats, err = r.delimited.Parse(ctx, filePath)
	case FormatRecords:
		rows, stats, err = r.records.Parse(ctx, filePath)
	case FormatReport:
		rows, stats, err = r.report.Parse(ctx, filePath)
	}
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"format":    format,
		"summary":   stats.String(),
	}).Info("Read evidence file")

	return &Source{
		EvidenceID: filepath.Base(filePath),
		Format:     format,
		Rows:       rows,
		Stats:      stats,
	}, nil
}
