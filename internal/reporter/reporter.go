// Package reporter renders analysis reports for people and for other programs.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one alert per row for spreadsheet review
//
// Narrative produces the plain numeric summary of a report that is handed to
// the external narrative writer. It contains only figures and the alert
// descriptions already produced by the detectors.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:        reporter.FormatCSV,
//		TableMaxWidth: 120,
//		CSVDelimiter:  ';',
//		CSVHeaders:    true,
//	})
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang-redflag-service/internal/analyzer"
	"golang-redflag-service/internal/metrics"
	"golang-redflag-service/internal/models"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeAlertDetails   bool `json:"include_alert_details"`
	IncludeRuleStatus     bool `json:"include_rule_status"`
	IncludeCounterparties bool `json:"include_counterparties"`
	IncludeMethods        bool `json:"include_methods"`

	// Console formatting options
	TableMaxWidth int `json:"table_max_width"`
	// MaxAlerts caps the alerts listed per severity on the console; 0 lists all.
	MaxAlerts int `json:"max_alerts"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	SortByScore bool `json:"sort_by_score"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                FormatConsole,
		IncludeAlertDetails:   true,
		IncludeRuleStatus:     true,
		IncludeCounterparties: true,
		IncludeMethods:        true,
		TableMaxWidth:         120,
		MaxAlerts:             0,
		CSVDelimiter:          ',',
		CSVHeaders:            true,
		SortByScore:           true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxAlerts < 0 {
		return fmt.Errorf("max alerts cannot be negative, got %d", c.MaxAlerts)
	}

	return nil
}

// ReportGenerator generates analysis reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport renders report and writes it to writer.
func (rg *ReportGenerator) GenerateReport(report *analyzer.Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("analysis report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *analyzer.Report, writer io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "RED FLAG ANALYSIS REPORT\n")
	fmt.Fprintf(&b, "Case: %s\n", report.CaseID)
	fmt.Fprintf(&b, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Status: %s\n", report.Status)
	fmt.Fprintf(&b, "Ledger Version: %d\n", report.LedgerVersion)
	fmt.Fprintf(&b, "Processing Duration: %v\n\n", report.Duration)

	fmt.Fprintf(&b, "=== SUMMARY ===\n")
	rg.printSummary(report, &b)
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "=== ALERTS ===\n")
	rg.printAlerts(report, &b)
	fmt.Fprintf(&b, "\n")

	if rg.config.IncludeRuleStatus {
		fmt.Fprintf(&b, "=== RULES ===\n")
		rg.printRuleStatus(report, &b)
		fmt.Fprintf(&b, "\n")
	}

	if rg.config.IncludeCounterparties && len(report.Summary.TopCounterparties) > 0 {
		fmt.Fprintf(&b, "=== TOP COUNTERPARTIES ===\n")
		rg.printCounterparties(report.Summary.TopCounterparties, &b)
		fmt.Fprintf(&b, "\n")
	}

	if rg.config.IncludeMethods && len(report.Summary.Methods) > 0 {
		fmt.Fprintf(&b, "=== PAYMENT METHODS ===\n")
		rg.printMethods(report.Summary.Methods, &b)
	}

	if _, err := io.WriteString(writer, b.String()); err != nil {
		return fmt.Errorf("failed to write console report: %w", err)
	}
	return nil
}

func (rg *ReportGenerator) generateJSONReport(report *analyzer.Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.filterReportForOutput(report))
}

func (rg *ReportGenerator) generateCSVReport(report *analyzer.Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Case_ID",
			"Alert_ID",
			"Rule_ID",
			"Type",
			"Severity",
			"Score",
			"Evidence_Count",
			"Transaction_IDs",
			"Description",
			"Explanation",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, alert := range rg.sortedAlerts(report.Alerts) {
		record := []string{
			alert.CaseID,
			alert.ID,
			alert.RuleID,
			alert.Type,
			string(alert.Severity),
			fmt.Sprintf("%.2f", alert.Score),
			fmt.Sprintf("%d", alert.EvidenceCount),
			strings.Join(alert.TransactionIDs, ";"),
			alert.Description,
			alert.Explanation,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write alert record: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV report: %w", err)
	}
	return nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(report *analyzer.Report, writer io.Writer) {
	s := report.Summary
	fmt.Fprintf(writer, "Transactions:   %d\n", report.Transactions)
	fmt.Fprintf(writer, "Defaulted Rows: %d\n", report.DefaultedRows)
	if s.TransactionCount > 0 {
		fmt.Fprintf(writer, "Period:         %s to %s\n",
			s.FirstDate.Format("2006-01-02"), s.LastDate.Format("2006-01-02"))
	}
	fmt.Fprintf(writer, "Total Credits:  %s\n", s.TotalCredits.StringFixed(2))
	fmt.Fprintf(writer, "Total Debits:   %s\n", s.TotalDebits.StringFixed(2))
	fmt.Fprintf(writer, "Balance:        %s\n", s.Balance.StringFixed(2))
	fmt.Fprintf(writer, "Average Ticket: %s\n", s.AverageTicket.StringFixed(2))
}

func (rg *ReportGenerator) printAlerts(report *analyzer.Report, writer io.Writer) {
	fmt.Fprintf(writer, "Total Alerts: %d\n", report.Counts.Total)
	for _, id := range report.Counts.SortedRuleIDs() {
		fmt.Fprintf(writer, "  %-22s %d\n", id+":", report.Counts.ByRule[id])
	}

	if !rg.config.IncludeAlertDetails || len(report.Alerts) == 0 {
		return
	}
	fmt.Fprintf(writer, "\n")

	groups := make(map[models.Severity][]models.Alert)
	for _, a := range rg.sortedAlerts(report.Alerts) {
		groups[a.Severity] = append(groups[a.Severity], a)
	}

	for _, severity := range severityOrder {
		alerts := groups[severity]
		if len(alerts) == 0 {
			continue
		}

		fmt.Fprintf(writer, "%s Severity (%d):\n", strings.ToUpper(string(severity)), len(alerts))
		for i, a := range alerts {
			if rg.config.MaxAlerts > 0 && i >= rg.config.MaxAlerts {
				fmt.Fprintf(writer, "  ... and %d more\n", len(alerts)-i)
				break
			}
			line := fmt.Sprintf("  - [%s] %s (score %.1f, %d transactions)",
				a.RuleID, a.Description, a.Score, a.EvidenceCount)
			fmt.Fprintf(writer, "%s\n", rg.truncate(line))
		}
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) printRuleStatus(report *analyzer.Report, writer io.Writer) {
	fmt.Fprintf(writer, "Succeeded: %s\n", joinOrNone(report.Succeeded))
	if len(report.Failed) == 0 {
		fmt.Fprintf(writer, "Failed:    none\n")
	} else {
		fmt.Fprintf(writer, "Failed:\n")
		for _, f := range report.Failed {
			fmt.Fprintf(writer, "  - %s: %s\n", f.RuleID, rg.truncate(f.Reason))
		}
	}
	fmt.Fprintf(writer, "Skipped:   %s\n", joinOrNone(report.Skipped))
}

func (rg *ReportGenerator) printCounterparties(top []metrics.CounterpartyTotal, writer io.Writer) {
	for i, cp := range top {
		name := cp.Name
		if name == "" {
			name = cp.Key
		}
		fmt.Fprintf(writer, "  %d. %s", i+1, name)
		if cp.Document != "" && cp.Document != name {
			fmt.Fprintf(writer, " (%s)", cp.Document)
		}
		fmt.Fprintf(writer, ": %s in %d transactions\n", cp.Total.StringFixed(2), cp.Count)
	}
}

func (rg *ReportGenerator) printMethods(methods []metrics.MethodShare, writer io.Writer) {
	for _, m := range methods {
		fmt.Fprintf(writer, "  %-10s %s in %d transactions\n", string(m.Method)+":", m.Amount.StringFixed(2), m.Count)
	}
}

// Helper methods

var severityOrder = []models.Severity{
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
}

// sortedAlerts orders a copy of alerts by severity, then by score when
// configured. Ties keep the engine's rule order.
func (rg *ReportGenerator) sortedAlerts(alerts []models.Alert) []models.Alert {
	out := append([]models.Alert(nil), alerts...)
	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		if rg.config.SortByScore {
			return out[i].Score > out[j].Score
		}
		return false
	})
	return out
}

func (rg *ReportGenerator) truncate(s string) string {
	if len(s) <= rg.config.TableMaxWidth {
		return s
	}
	return s[:rg.config.TableMaxWidth-3] + "..."
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

func (rg *ReportGenerator) filterReportForOutput(report *analyzer.Report) map[string]interface{} {
	output := map[string]interface{}{
		"caseId":        report.CaseID,
		"status":        report.Status,
		"generatedAt":   report.GeneratedAt,
		"ledgerVersion": report.LedgerVersion,
		"transactions":  report.Transactions,
		"defaultedRows": report.DefaultedRows,
		"counts":        report.Counts,
		"summary":       report.Summary,
		"durationMs":    report.Duration.Milliseconds(),
	}

	if rg.config.IncludeAlertDetails {
		output["alerts"] = rg.sortedAlerts(report.Alerts)
	}

	if rg.config.IncludeRuleStatus {
		durations := make(map[string]float64, len(report.Durations))
		for id, d := range report.Durations {
			durations[id] = float64(d.Microseconds()) / 1000
		}
		output["rules"] = map[string]interface{}{
			"succeeded":   report.Succeeded,
			"failed":      report.Failed,
			"skipped":     report.Skipped,
			"durationsMs": durations,
		}
	}

	return output
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
