package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"golang-redflag-service/internal/analyzer"
	"golang-redflag-service/internal/engine"
	"golang-redflag-service/internal/metrics"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
)

func createTestReport() *analyzer.Report {
	day := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	alerts := []models.Alert{
		{
			ID:             "a-cash",
			CaseID:         "CASE-1",
			RuleID:         models.RuleCashIntensity,
			Type:           models.RuleCashIntensity,
			Description:    "Cash volume of 55000.00 is 91.67% of total volume",
			Severity:       models.SeverityMedium,
			EvidenceCount:  2,
			TransactionIDs: []string{"c1", "c2"},
			Score:          91.67,
		},
		{
			ID:             "a-struct",
			CaseID:         "CASE-1",
			RuleID:         models.RuleStructuring,
			Type:           models.RuleStructuring,
			Description:    "3 debits below 10000 within 24h totaling 28700.00",
			Severity:       models.SeverityHigh,
			EvidenceCount:  3,
			TransactionIDs: []string{"s1", "s2", "s3"},
			Score:          50,
		},
	}

	return &analyzer.Report{
		CaseID:        "CASE-1",
		Status:        "partial",
		GeneratedAt:   day.Add(time.Hour),
		LedgerVersion: 3,
		Transactions:  5,
		DefaultedRows: 1,
		Alerts:        alerts,
		Counts:        models.CountAlerts(alerts),
		Succeeded:     []string{models.RuleStructuring, models.RuleCashIntensity},
		Failed:        []engine.RuleFailure{{RuleID: models.RuleCircularity, Reason: "invalid windowHours"}},
		Skipped:       []string{models.RuleFanInOut},
		Durations:     map[string]time.Duration{models.RuleStructuring: 1500 * time.Microsecond},
		Summary: metrics.Summary{
			TransactionCount: 5,
			TotalCredits:     decimal.RequireFromString("60000"),
			TotalDebits:      decimal.RequireFromString("28700"),
			Balance:          decimal.RequireFromString("31300"),
			AverageTicket:    decimal.RequireFromString("17740"),
			FirstDate:        day,
			LastDate:         day.Add(48 * time.Hour),
			TopCounterparties: []metrics.CounterpartyTotal{
				{Key: "12345678000199", Document: "12345678000199", Name: "ACME LTDA", Total: decimal.RequireFromString("28700"), Count: 3},
			},
			Methods: []metrics.MethodShare{
				{Method: models.MethodPIX, Amount: decimal.RequireFromString("28700"), Count: 3},
			},
		},
		Duration: 20 * time.Millisecond,
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"invalid format", &ReportConfig{Format: "pdf", TableMaxWidth: 120}, true},
		{"table width too small", &ReportConfig{Format: FormatConsole, TableMaxWidth: 30}, true},
		{"negative max alerts", &ReportConfig{Format: FormatConsole, TableMaxWidth: 80, MaxAlerts: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"xlsx", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("OutputFormat(%q).IsValid() = %v, want %v", tt.format, got, tt.valid)
		}
	}
}

func TestGenerateReport_Nil(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil report")
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	generator, _ := NewReportGenerator(DefaultReportConfig())

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestReport(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"RED FLAG ANALYSIS REPORT",
		"Case: CASE-1",
		"Status: partial",
		"=== SUMMARY ===",
		"Period:         2024-02-01 to 2024-02-03",
		"Total Credits:  60000.00",
		"Balance:        31300.00",
		"Total Alerts: 2",
		"HIGH Severity (1):",
		"MEDIUM Severity (1):",
		"=== RULES ===",
		"  - circularidade: invalid windowHours",
		"Skipped:   fan-in-out",
		"ACME LTDA (12345678000199): 28700.00 in 3 transactions",
		"=== PAYMENT METHODS ===",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console report missing %q\n%s", want, out)
		}
	}

	if strings.Index(out, "HIGH Severity") > strings.Index(out, "MEDIUM Severity") {
		t.Error("high severity alerts should be listed first")
	}
}

func TestGenerateConsoleReport_MaxAlerts(t *testing.T) {
	report := createTestReport()
	extra := report.Alerts[1]
	extra.ID = "a-struct-2"
	report.Alerts = append(report.Alerts, extra)

	config := DefaultReportConfig()
	config.MaxAlerts = 1
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "... and 1 more") {
		t.Errorf("expected truncated alert list\n%s", buf.String())
	}
}

func TestGenerateJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestReport(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	var decoded struct {
		CaseID        string         `json:"caseId"`
		LedgerVersion uint64         `json:"ledgerVersion"`
		Alerts        []models.Alert `json:"alerts"`
		Counts        struct {
			Total int `json:"total"`
		} `json:"counts"`
		Rules struct {
			Failed      []engine.RuleFailure `json:"failed"`
			DurationsMs map[string]float64   `json:"durationsMs"`
		} `json:"rules"`
		Summary struct {
			TotalCredits string `json:"totalCredits"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	if decoded.CaseID != "CASE-1" || decoded.LedgerVersion != 3 {
		t.Errorf("header = %+v", decoded)
	}
	if decoded.Counts.Total != 2 || len(decoded.Alerts) != 2 {
		t.Errorf("got %d alerts (count %d), want 2", len(decoded.Alerts), decoded.Counts.Total)
	}
	if decoded.Alerts[0].ID != "a-struct" {
		t.Errorf("first alert = %s, want the high severity one", decoded.Alerts[0].ID)
	}
	if len(decoded.Rules.Failed) != 1 || decoded.Rules.Failed[0].RuleID != models.RuleCircularity {
		t.Errorf("failed rules = %+v", decoded.Rules.Failed)
	}
	if got := decoded.Rules.DurationsMs[models.RuleStructuring]; got != 1.5 {
		t.Errorf("duration = %v, want 1.5", got)
	}
}

func TestGenerateJSONReport_WithoutDetails(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	config.IncludeAlertDetails = false
	config.IncludeRuleStatus = false
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestReport(), &buf); err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"alerts", "rules"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("key %q should be omitted", key)
		}
	}
}

func TestGenerateCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.CSVDelimiter = ';'
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestReport(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	reader := csv.NewReader(&buf)
	reader.Comma = ';'
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("got %d records, want header plus 2 alerts", len(records))
	}
	if records[0][0] != "Case_ID" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][2] != models.RuleStructuring || records[1][7] != "s1;s2;s3" {
		t.Errorf("first row = %v", records[1])
	}
	if records[2][5] != "91.67" {
		t.Errorf("score = %s, want 91.67", records[2][5])
	}
}

func TestSortedAlerts_DoesNotMutate(t *testing.T) {
	report := createTestReport()
	generator, _ := NewReportGenerator(nil)

	sorted := generator.sortedAlerts(report.Alerts)
	if sorted[0].ID != "a-struct" {
		t.Errorf("sorted[0] = %s, want a-struct", sorted[0].ID)
	}
	if report.Alerts[0].ID != "a-cash" {
		t.Error("sortedAlerts must not reorder the report")
	}
}

func TestNarrative(t *testing.T) {
	got := Narrative(createTestReport())

	for _, want := range []string{
		"Case CASE-1: 5 transactions from 2024-02-01 to 2024-02-03.",
		"Total credits: 60000.00. Total debits: 28700.00. Balance: 31300.00. Average ticket: 17740.00.",
		"Rows with defaulted fields: 1.",
		"Alerts: 2 (high 1, medium 1, low 0).",
		"By rule: especie-intensa 1, fracionamento 1.",
		"- [fracionamento/high] 3 debits below 10000 within 24h totaling 28700.00",
		"Rules not evaluated: circularidade.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Narrative() missing %q\n%s", want, got)
		}
	}

	if Narrative(nil) != "" {
		t.Error("Narrative(nil) should be empty")
	}
}

func TestNarrative_NoAlerts(t *testing.T) {
	report := &analyzer.Report{CaseID: "EMPTY", Counts: models.CountAlerts(nil)}
	got := Narrative(report)
	if !strings.Contains(got, "Case EMPTY: 0 transactions.") || !strings.Contains(got, "Alerts: 0 (high 0, medium 0, low 0).") {
		t.Errorf("Narrative() = %q", got)
	}
	if strings.Contains(got, "By rule") {
		t.Errorf("Narrative() should omit the rule breakdown:\n%s", got)
	}
}

func TestSafeReportGenerator_FallbackToConsole(t *testing.T) {
	report := createTestReport()
	report.Alerts[0].Score = math.NaN()

	config := DefaultReportConfig()
	config.Format = FormatJSON
	srg, err := NewSafeReportGenerator(config, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := srg.GenerateReportSafely(report, &buf); err != nil {
		t.Fatalf("GenerateReportSafely() error = %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "NOTE: Report generated in fallback format") {
		t.Errorf("expected fallback notice, got\n%s", out)
	}
	if !strings.Contains(out, "RED FLAG ANALYSIS REPORT") {
		t.Errorf("expected console body, got\n%s", out)
	}
}

func TestSafeReportGenerator_Validation(t *testing.T) {
	srg, err := NewSafeReportGenerator(nil, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}

	err = srg.GenerateReportSafely(nil, &bytes.Buffer{})
	if !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("nil report error = %v, want validation error", err)
	}

	_, err = NewSafeReportGenerator(&ReportConfig{Format: "xml", TableMaxWidth: 80}, logger.Nop())
	if !errors.IsCategory(err, errors.CategoryConfiguration) {
		t.Errorf("bad config error = %v, want configuration error", err)
	}
}

func TestSafeReportGenerator_WriteReportFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	config := DefaultReportConfig()
	config.Format = FormatCSV
	srg, _ := NewSafeReportGenerator(config, logger.Nop())

	path, err := srg.WriteReportFile(fs, "/out/report.csv", createTestReport())
	if err != nil {
		t.Fatalf("WriteReportFile() error = %v", err)
	}
	if path != "/out/report.csv" {
		t.Errorf("path = %s", path)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "Case_ID,Alert_ID") {
		t.Errorf("file content = %q", data)
	}

	readOnly := afero.NewReadOnlyFs(afero.NewMemMapFs())
	if _, err := srg.WriteReportFile(readOnly, "/out/report.csv", createTestReport()); err == nil {
		t.Error("expected error writing to a read-only filesystem")
	}
}

func TestBackupPath(t *testing.T) {
	if got := backupPath("/tmp/out/report.json"); got != "/tmp/out/report_backup.json" {
		t.Errorf("backupPath() = %s", got)
	}
}
