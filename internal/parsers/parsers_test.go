package parsers

import (
	"context"
	"testing"

	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/pkg/errors"

	"github.com/spf13/afero"
)

func newTestFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return fs
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if !config.HasHeader {
		t.Error("Expected HasHeader to be true")
	}
	if config.Delimiter != 0 {
		t.Errorf("Expected delimiter to be sniffed, got %q", config.Delimiter)
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"extrato.csv", FormatDelimited, false},
		{"EXTRATO.TSV", FormatDelimited, false},
		{"rows.json", FormatRecords, false},
		{"rows.ndjson", FormatRecords, false},
		{"relatorio.txt", FormatReport, false},
		{"extrato.pdf", "", true},
		{"planilha.xlsx", "", true},
		{"noext", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.IsCode(err, errors.CodeUnsupportedFormat) {
				t.Errorf("DetectFormat() error code = %v, want unsupported_format", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReader_Delimited(t *testing.T) {
	fs := newTestFs(t, map[string]string{
		"/evidence/extrato.csv": "Data;Valor;Histórico\n" +
			"15/01/2024;\"1.500,50\";PIX RECEBIDO\n" +
			"\n" +
			"16/01/2024;-300,00;TED ENVIADA\n",
	})

	source, err := NewReader(fs, nil).Read(context.Background(), "/evidence/extrato.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if source.EvidenceID != "extrato.csv" {
		t.Errorf("EvidenceID = %s, want extrato.csv", source.EvidenceID)
	}
	if len(source.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(source.Rows))
	}

	row, ok := source.Rows[0].(normalize.DelimitedRow)
	if !ok {
		t.Fatalf("row type = %T, want normalize.DelimitedRow", source.Rows[0])
	}
	if row.Fields["Valor"] != "1.500,50" {
		t.Errorf("Valor = %q, want 1.500,50", row.Fields["Valor"])
	}
	if row.Line != 2 {
		t.Errorf("Line = %d, want 2", row.Line)
	}
}

func TestReader_DelimitedLatin1(t *testing.T) {
	// "Histórico" encoded as Windows-1252.
	fs := newTestFs(t, map[string]string{
		"legacy.csv": "Data,Valor,Hist\xf3rico\n15/01/2024,10.00,Dep\xf3sito\n",
	})

	source, err := NewReader(fs, nil).Read(context.Background(), "legacy.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	row := source.Rows[0].(normalize.DelimitedRow)
	if row.Fields["Histórico"] != "Depósito" {
		t.Errorf("Histórico = %q, want Depósito", row.Fields["Histórico"])
	}
}

func TestReader_MissingColumns(t *testing.T) {
	fs := newTestFs(t, map[string]string{
		"bad.csv": "foo,bar\n1,2\n",
	})

	_, err := NewReader(fs, nil).Read(context.Background(), "bad.csv")
	if !errors.IsCode(err, errors.CodeMissingColumn) {
		t.Errorf("Read() error = %v, want missing_column", err)
	}
}

func TestReader_Unreadable(t *testing.T) {
	_, err := NewReader(afero.NewMemMapFs(), nil).Read(context.Background(), "missing.csv")
	if !errors.IsCategory(err, errors.CategoryIngestion) {
		t.Errorf("Read() error = %v, want ingestion error", err)
	}
}

func TestReader_Records(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"array", `[{"date":"2024-01-15","amount":10.5},{"date":"2024-01-16","amount":"20,00"}]`, 2},
		{"envelope", `{"transactions":[{"date":"2024-01-15","amount":1}]}`, 1},
		{"ndjson", "{\"date\":\"2024-01-15\",\"amount\":1}\n\n{\"date\":\"2024-01-16\",\"amount\":2}\n", 2},
		{"array with junk", `[{"date":"2024-01-15"}, 42]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newTestFs(t, map[string]string{"rows.json": tt.content})
			source, err := NewReader(fs, nil).Read(context.Background(), "rows.json")
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if len(source.Rows) != tt.want {
				t.Errorf("rows = %d, want %d", len(source.Rows), tt.want)
			}
			for _, r := range source.Rows {
				if _, ok := r.(normalize.GenericRecord); !ok {
					t.Errorf("row type = %T, want normalize.GenericRecord", r)
				}
			}
		})
	}
}

func TestReader_RecordsKeepExactNumbers(t *testing.T) {
	fs := newTestFs(t, map[string]string{"rows.json": `[{"date":"2024-01-15","amount":1500.10}]`})
	source, err := NewReader(fs, nil).Read(context.Background(), "rows.json")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	result, err := normalize.New(normalize.Options{}).Normalize(normalize.Batch{CaseID: "C", Rows: source.Rows})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := result.Transactions[0].Amount.StringFixed(2); got != "1500.10" {
		t.Errorf("amount = %s, want 1500.10", got)
	}
}

func TestReader_Report(t *testing.T) {
	fs := newTestFs(t, map[string]string{
		"relatorio.txt": "EXTRATO DE CONTA CORRENTE\n" +
			"\n" +
			"15/01/2024 PIX RECEBIDO FULANO 1.500,00 C\n" +
			"16/01/2024 SAQUE 200,00 D\n",
	})

	source, err := NewReader(fs, nil).Read(context.Background(), "relatorio.txt")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(source.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(source.Rows))
	}
	if source.Stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", source.Stats.Skipped)
	}
	line := source.Rows[0].(normalize.ReportLine)
	if line.Line != 3 {
		t.Errorf("Line = %d, want 3", line.Line)
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := map[string]rune{
		"a;b;c\n1;2;3": ';',
		"a,b,c\n1,2,3": ',',
		"a\tb\tc":      '\t',
		"a|b|c":        '|',
		"single":       ',',
	}
	for input, want := range tests {
		if got := sniffDelimiter([]byte(input)); got != want {
			t.Errorf("sniffDelimiter(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseStats(t *testing.T) {
	stats := NewParseStats()
	if stats.HasErrors() {
		t.Error("new stats should have no errors")
	}
	stats.AddError(&ParseError{Line: 3, Message: "bad"})
	stats.AddError(&ParseError{Line: 4, Message: "worse"})
	if !stats.HasErrors() || stats.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", stats.ErrorCount)
	}
	if got := stats.GetSampleErrors(1); len(got) != 1 {
		t.Errorf("GetSampleErrors(1) = %d samples, want 1", len(got))
	}
}
