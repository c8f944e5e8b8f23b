package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// alertNamespace seeds deterministic alert ids.
var alertNamespace = uuid.MustParse("5b0b7c0e-8f4e-4d0c-9a54-3f0f3f6f2a11")

// Alert is one scored finding produced by a detector.
type Alert struct {
	ID             string                 `json:"id"`
	CaseID         string                 `json:"caseId"`
	RuleID         string                 `json:"ruleId"`
	Type           string                 `json:"type"`
	Description    string                 `json:"description"`
	Severity       Severity               `json:"severity"`
	EvidenceCount  int                    `json:"evidenceCount"`
	TransactionIDs []string               `json:"transactionIds"`
	Parameters     map[string]interface{} `json:"parameters"`
	Score          float64                `json:"score"`
	Explanation    string                 `json:"explanation"`
}

// AlertID derives a stable id from the case, the rule, the evidence and the
// ordinal of the finding within the rule's output.
func AlertID(caseID, ruleID string, ordinal int, transactionIDs []string) string {
	key := fmt.Sprintf("%s|%s|%d|%s", caseID, ruleID, ordinal, strings.Join(transactionIDs, ","))
	return uuid.NewSHA1(alertNamespace, []byte(key)).String()
}

// AlertCounts summarizes an alert set by rule and severity.
type AlertCounts struct {
	Total      int              `json:"total"`
	ByRule     map[string]int   `json:"byRule"`
	BySeverity map[Severity]int `json:"bySeverity"`
}

// CountAlerts tallies alerts by rule and severity.
func CountAlerts(alerts []Alert) AlertCounts {
	counts := AlertCounts{
		Total:      len(alerts),
		ByRule:     make(map[string]int),
		BySeverity: make(map[Severity]int),
	}
	for _, a := range alerts {
		counts.ByRule[a.RuleID]++
		counts.BySeverity[a.Severity]++
	}
	return counts
}

// SortedRuleIDs returns the rule ids present in counts in lexical order.
func (c AlertCounts) SortedRuleIDs() []string {
	ids := make([]string, 0, len(c.ByRule))
	for id := range c.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AlertSet is the stored result of the latest analysis run of a case. A new
// run replaces the whole set.
type AlertSet struct {
	CaseID        string      `json:"caseId"`
	GeneratedAt   time.Time   `json:"generatedAt"`
	LedgerVersion uint64      `json:"ledgerVersion"`
	Alerts        []Alert     `json:"alerts"`
	Counts        AlertCounts `json:"counts"`
	Succeeded     []string    `json:"succeeded"`
	Failed        []string    `json:"failed"`
	Skipped       []string    `json:"skipped"`
}
