package rules

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// BookVersion is the rule book schema version this package understands.
const BookVersion = 1

// Override changes a built-in rule or declares a new one. Unset fields keep
// the value of the rule being overridden; parameters merge by key.
type Override struct {
	ID          string                 `yaml:"id"`
	Name        string                 `yaml:"name,omitempty"`
	Description string                 `yaml:"description,omitempty"`
	Detector    string                 `yaml:"detector,omitempty"`
	Enabled     *bool                  `yaml:"enabled,omitempty"`
	Severity    models.Severity        `yaml:"severity,omitempty"`
	Parameters  map[string]interface{} `yaml:"parameters,omitempty"`
}

// Book is the on-disk rule configuration.
//
//	version: 1
//	defaults:
//	  - id: fracionamento
//	    parameters: {threshold: 5000}
//	cases:
//	  CASE-42:
//	    - id: especie-intensa
//	      enabled: false
type Book struct {
	Version  int                   `yaml:"version"`
	Defaults []Override            `yaml:"defaults,omitempty"`
	Cases    map[string][]Override `yaml:"cases,omitempty"`
}

// Parse decodes and validates a rule book. Unknown keys are rejected.
func Parse(data []byte) (*Book, error) {
	book := &Book{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(book); err != nil && err != io.EOF {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules", "yaml", err).
			WithSuggestion("check the rule book YAML syntax")
	}
	if book.Version == 0 {
		book.Version = BookVersion
	}
	if err := book.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules", book.Version, err)
	}
	return book, nil
}

// Validate checks versions, ids and severities.
func (b *Book) Validate() error {
	var err error
	if b.Version != BookVersion {
		err = multierr.Append(err, fmt.Errorf("unsupported rule book version %d", b.Version))
	}
	err = multierr.Append(err, validateOverrides("defaults", b.Defaults))
	for caseID, overrides := range b.Cases {
		if strings.TrimSpace(caseID) == "" {
			err = multierr.Append(err, fmt.Errorf("cases: empty case id"))
			continue
		}
		err = multierr.Append(err, validateOverrides("cases."+caseID, overrides))
	}
	return err
}

func validateOverrides(scope string, overrides []Override) error {
	var err error
	seen := make(map[string]bool, len(overrides))
	for i, o := range overrides {
		if strings.TrimSpace(o.ID) == "" {
			err = multierr.Append(err, fmt.Errorf("%s[%d]: rule id is required", scope, i))
			continue
		}
		if seen[o.ID] {
			err = multierr.Append(err, fmt.Errorf("%s: rule %s listed twice", scope, o.ID))
		}
		seen[o.ID] = true
		if o.Severity != "" && !o.Severity.IsValid() {
			err = multierr.Append(err, fmt.Errorf("%s: rule %s has invalid severity %q", scope, o.ID, o.Severity))
		}
	}
	return err
}

// RulesFor returns the effective rules for caseID: built-ins, then book
// defaults, then the case's own overrides. A nil book yields the built-ins.
func (b *Book) RulesFor(caseID string) []models.Rule {
	rules := Defaults()
	if b == nil {
		return rules
	}
	rules = Apply(rules, b.Defaults)
	return Apply(rules, b.Cases[caseID])
}

// Apply layers overrides on a copy of base. Overrides naming an unknown id
// append a new rule, enabled with medium severity unless stated otherwise.
func Apply(base []models.Rule, overrides []Override) []models.Rule {
	rules := models.CloneRules(base)
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.ID] = i
	}

	for _, o := range overrides {
		i, ok := index[o.ID]
		if !ok {
			rules = append(rules, models.Rule{
				ID:         o.ID,
				Enabled:    true,
				Severity:   models.SeverityMedium,
				Parameters: map[string]interface{}{},
			})
			i = len(rules) - 1
			index[o.ID] = i
		}

		r := &rules[i]
		if o.Name != "" {
			r.Name = o.Name
		}
		if o.Description != "" {
			r.Description = o.Description
		}
		if o.Detector != "" {
			r.Detector = o.Detector
		}
		if o.Enabled != nil {
			r.Enabled = *o.Enabled
		}
		if o.Severity != "" {
			r.Severity = o.Severity
		}
		for k, v := range o.Parameters {
			r.Parameters[k] = v
		}
	}
	return rules
}

// FromRules renders rules as a complete override list.
func FromRules(rules []models.Rule) []Override {
	out := make([]Override, len(rules))
	for i, r := range rules {
		enabled := r.Enabled
		out[i] = Override{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Detector:    r.Detector,
			Enabled:     &enabled,
			Severity:    r.Severity,
			Parameters:  r.Clone().Parameters,
		}
	}
	return out
}

// Marshal renders rules as a rule book with a single defaults section.
func Marshal(rules []models.Rule) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&Book{Version: BookVersion, Defaults: FromRules(rules)}); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode rules", err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode rules", err)
	}
	return buf.Bytes(), nil
}
