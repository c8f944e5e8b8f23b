package models

import (
	"fmt"
	"strings"
)

// Severity grades how serious a rule's findings are.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid checks if the severity is known
func (s Severity) IsValid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Rank orders severities from low (1) to high (3); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// Built-in rule ids. Each also names the detector that implements it.
const (
	RuleStructuring   = "fracionamento"
	RuleCircularity   = "circularidade"
	RuleFanInOut      = "fan-in-out"
	RuleProfileDrift  = "perfil-incompativel"
	RuleCashIntensity = "especie-intensa"
)

// Rule is a named, toggleable detector configuration.
type Rule struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Detector    string                 `json:"detector,omitempty" yaml:"detector,omitempty"`
	Enabled     bool                   `json:"enabled" yaml:"enabled"`
	Severity    Severity               `json:"severity" yaml:"severity"`
	Parameters  map[string]interface{} `json:"parameters" yaml:"parameters"`
}

// DetectorID returns the detector that evaluates this rule.
func (r *Rule) DetectorID() string {
	if strings.TrimSpace(r.Detector) != "" {
		return r.Detector
	}
	return r.ID
}

// Validate checks the rule's structural fields. Parameter semantics are
// validated by the detector that consumes them.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule ID cannot be empty")
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("rule %s has invalid severity %q", r.ID, r.Severity)
	}
	return nil
}

// Clone returns a deep copy of the rule's parameter map so callers can
// mutate it freely.
func (r Rule) Clone() Rule {
	params := make(map[string]interface{}, len(r.Parameters))
	for k, v := range r.Parameters {
		params[k] = v
	}
	r.Parameters = params
	return r
}

// CloneRules deep-copies a rule list.
func CloneRules(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = r.Clone()
	}
	return out
}
