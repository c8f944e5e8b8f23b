package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/pkg/errors"

	"github.com/go-viper/mapstructure/v2"
)

// RowFormat names the shape of the rows in an ingest request.
type RowFormat string

const (
	RowsDelimited RowFormat = "delimited"
	RowsEntity    RowFormat = "entity"
	RowsReport    RowFormat = "report"
	RowsGeneric   RowFormat = "generic"
)

// IsValid reports whether f is a known row format.
func (f RowFormat) IsValid() bool {
	switch f {
	case RowsDelimited, RowsEntity, RowsReport, RowsGeneric:
		return true
	default:
		return false
	}
}

// IngestRequest is the body of POST /api/cases/{caseID}/ingest.
type IngestRequest struct {
	EvidenceID     string            `json:"evidenceId"`
	HolderDocument string            `json:"holderDocument"`
	Format         RowFormat         `json:"format"`
	Rows           []json.RawMessage `json:"rows"`
}

// Batch converts the request into a normalization batch for caseID.
func (req *IngestRequest) Batch(caseID string) (normalize.Batch, error) {
	if req.EvidenceID == "" {
		return normalize.Batch{}, errors.ValidationError(errors.CodeMissingField, "evidenceId", nil, nil)
	}
	if !req.Format.IsValid() {
		return normalize.Batch{}, errors.IngestionError(errors.CodeUnsupportedFormat, req.EvidenceID,
			fmt.Errorf("row format %q is not supported", req.Format)).
			WithSuggestion("use one of delimited, entity, report or generic")
	}
	rows, err := decodeRows(req.Format, req.Rows)
	if err != nil {
		return normalize.Batch{}, err
	}
	return normalize.Batch{
		CaseID:         caseID,
		EvidenceID:     req.EvidenceID,
		HolderDocument: req.HolderDocument,
		Rows:           rows,
	}, nil
}

// decodeRows turns raw JSON rows into source rows. Positions are 1-based and
// follow the order of the request unless an entity row carries its own.
func decodeRows(format RowFormat, raw []json.RawMessage) ([]normalize.SourceRow, error) {
	rows := make([]normalize.SourceRow, 0, len(raw))
	for i, item := range raw {
		pos := i + 1
		row, err := decodeRow(format, pos, item)
		if err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidValue, fmt.Sprintf("rows[%d]", i), string(item), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(format RowFormat, pos int, item json.RawMessage) (normalize.SourceRow, error) {
	switch format {
	case RowsDelimited:
		var values map[string]interface{}
		if err := decodeJSON(item, &values); err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(values))
		if err := weakDecode(values, &fields); err != nil {
			return nil, err
		}
		return normalize.DelimitedRow{Line: pos, Fields: fields}, nil

	case RowsEntity:
		var values map[string]interface{}
		if err := decodeJSON(item, &values); err != nil {
			return nil, err
		}
		var row normalize.EntityRow
		if err := weakDecode(values, &row); err != nil {
			return nil, err
		}
		if row.Row == 0 {
			row.Row = pos
		}
		return row, nil

	case RowsReport:
		var text string
		if err := json.Unmarshal(item, &text); err != nil {
			return nil, fmt.Errorf("report rows must be strings: %w", err)
		}
		return normalize.ReportLine{Line: pos, Text: text}, nil

	case RowsGeneric:
		var values map[string]interface{}
		if err := decodeJSON(item, &values); err != nil {
			return nil, err
		}
		return normalize.GenericRecord{Index: pos, Values: values}, nil

	default:
		return nil, errors.IngestionError(errors.CodeUnsupportedFormat, string(format),
			fmt.Errorf("row format %q is not supported", format))
	}
}

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// weakDecode copies loosely typed JSON values into out. JSON numbers are
// decoded as json.Number, so amounts sent as numbers keep their literal text
// in string fields.
func weakDecode(in interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
