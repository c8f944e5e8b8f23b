package reporter

import (
	"fmt"
	"strings"

	"golang-redflag-service/internal/analyzer"
)

// Narrative returns the plain numeric summary of report: totals, alert counts
// by rule and severity, and one line per alert description. The text carries
// no judgement of its own; it is the input of the external narrative writer.
func Narrative(report *analyzer.Report) string {
	if report == nil {
		return ""
	}

	var b strings.Builder
	s := report.Summary

	fmt.Fprintf(&b, "Case %s: %d transactions", report.CaseID, report.Transactions)
	if s.TransactionCount > 0 {
		fmt.Fprintf(&b, " from %s to %s", s.FirstDate.Format("2006-01-02"), s.LastDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, ".\n")
	fmt.Fprintf(&b, "Total credits: %s. Total debits: %s. Balance: %s. Average ticket: %s.\n",
		s.TotalCredits.StringFixed(2), s.TotalDebits.StringFixed(2),
		s.Balance.StringFixed(2), s.AverageTicket.StringFixed(2))
	if report.DefaultedRows > 0 {
		fmt.Fprintf(&b, "Rows with defaulted fields: %d.\n", report.DefaultedRows)
	}

	counts := report.Counts
	severities := make([]string, 0, len(severityOrder))
	for _, sev := range severityOrder {
		severities = append(severities, fmt.Sprintf("%s %d", sev, counts.BySeverity[sev]))
	}
	fmt.Fprintf(&b, "Alerts: %d (%s).\n", counts.Total, strings.Join(severities, ", "))

	if ids := counts.SortedRuleIDs(); len(ids) > 0 {
		byRule := make([]string, len(ids))
		for i, id := range ids {
			byRule[i] = fmt.Sprintf("%s %d", id, counts.ByRule[id])
		}
		fmt.Fprintf(&b, "By rule: %s.\n", strings.Join(byRule, ", "))
	}

	for _, a := range report.Alerts {
		fmt.Fprintf(&b, "- [%s/%s] %s\n", a.RuleID, a.Severity, a.Description)
	}

	if len(report.Failed) > 0 {
		fmt.Fprintf(&b, "Rules not evaluated: %s.\n", strings.Join(failedIDs(report), ", "))
	}

	return b.String()
}

func failedIDs(report *analyzer.Report) []string {
	ids := make([]string, len(report.Failed))
	for i, f := range report.Failed {
		ids[i] = f.RuleID
	}
	return ids
}
