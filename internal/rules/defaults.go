// Package rules provides the built-in rule catalogue and a YAML rule book
// that overrides it globally or per case.
package rules

import (
	"golang-redflag-service/internal/models"
)

// Defaults returns a fresh copy of the five built-in rules with their
// documented parameters.
func Defaults() []models.Rule {
	return []models.Rule{
		{
			ID:          models.RuleStructuring,
			Name:        "Fracionamento",
			Description: "Sub-threshold credits on the same channel within a short window",
			Enabled:     true,
			Severity:    models.SeverityHigh,
			Parameters: map[string]interface{}{
				"threshold":       "10000",
				"windowHours":     24,
				"minTransactions": 3,
			},
		},
		{
			ID:          models.RuleCircularity,
			Name:        "Circularidade",
			Description: "Funds returning to their origin through three parties",
			Enabled:     true,
			Severity:    models.SeverityHigh,
			Parameters: map[string]interface{}{
				"windowHours":         168,
				"similarityThreshold": 0.9,
			},
		},
		{
			ID:          models.RuleFanInOut,
			Name:        "Fan-in/Fan-out",
			Description: "Many distinct counterparties within a short window",
			Enabled:     true,
			Severity:    models.SeverityMedium,
			Parameters: map[string]interface{}{
				"threshold":   10,
				"windowHours": 168,
			},
		},
		{
			ID:          models.RuleProfileDrift,
			Name:        "Perfil incompatível",
			Description: "Recent transactions far above the holder's historical mean",
			Enabled:     true,
			Severity:    models.SeverityMedium,
			Parameters: map[string]interface{}{
				"multiplier":  5,
				"windowHours": 720,
			},
		},
		{
			ID:          models.RuleCashIntensity,
			Name:        "Espécie intensa",
			Description: "Cash dominating the holder's volume",
			Enabled:     true,
			Severity:    models.SeverityHigh,
			Parameters: map[string]interface{}{
				"threshold":  "50000",
				"percentage": 70,
			},
		},
	}
}

// Find returns the rule with id and whether it exists.
func Find(rules []models.Rule, id string) (models.Rule, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r, true
		}
	}
	return models.Rule{}, false
}
