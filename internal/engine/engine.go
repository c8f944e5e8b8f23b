// Package engine evaluates a case's rule set against a ledger snapshot.
//
// Every enabled rule runs on its own goroutine over the same read-only
// transaction slice. A rule that fails, whether through bad parameters, an
// unknown detector or a panic, is recorded and the remaining rules still run.
// Alerts are assembled in rule order afterwards, so the result does not
// depend on goroutine scheduling.
package engine

import (
	"fmt"
	"strings"
	"time"

	"golang-redflag-service/internal/detectors"
	"golang-redflag-service/internal/instrument"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
)

// RuleFailure records why a rule produced no alerts.
type RuleFailure struct {
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Result is the outcome of one engine run.
type Result struct {
	CaseID    string                   `json:"caseId"`
	Alerts    []models.Alert           `json:"alerts"`
	Succeeded []string                 `json:"succeeded"`
	Failed    []RuleFailure            `json:"failed"`
	Skipped   []string                 `json:"skipped"`
	Durations map[string]time.Duration `json:"durations"`
	// Err combines every rule failure, nil when all rules succeeded.
	Err error `json:"-"`
}

// FailedIDs lists the ids of failed rules in rule order.
func (r *Result) FailedIDs() []string {
	ids := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.RuleID
	}
	return ids
}

// Partial reports whether some rules failed while others succeeded.
func (r *Result) Partial() bool {
	return len(r.Failed) > 0 && len(r.Succeeded) > 0
}

// Engine runs rules through a detector registry.
type Engine struct {
	registry detectors.Registry
	logger   logger.Logger
}

// New creates an engine. A nil registry means the built-in detectors.
func New(registry detectors.Registry, log logger.Logger) *Engine {
	if registry == nil {
		registry = detectors.Builtin()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{
		registry: registry,
		logger:   log.WithComponent("engine"),
	}
}

type outcome struct {
	alerts   []models.Alert
	err      error
	skipped  bool
	duration time.Duration
}

// Run evaluates rules over txs for caseID. txs is never modified.
func (e *Engine) Run(caseID string, txs []models.Transaction, rules []models.Rule) *Result {
	log := e.logger.WithFields(logger.Fields{
		"case_id":      caseID,
		"rules":        len(rules),
		"transactions": len(txs),
	})
	log.Debug("Starting rule evaluation")

	outcomes := make([]outcome, len(rules))
	seen := make(map[string]bool, len(rules))

	var wg conc.WaitGroup
	for i := range rules {
		rule := rules[i]

		switch {
		case seen[rule.ID]:
			outcomes[i].err = errors.DetectorError(errors.CodeInvalidParameters, rule.ID,
				fmt.Errorf("duplicate rule id"))
			continue
		case !rule.Enabled:
			seen[rule.ID] = true
			outcomes[i].skipped = true
			continue
		}
		seen[rule.ID] = true

		slot := &outcomes[i]
		wg.Go(func() {
			start := time.Now()
			slot.alerts, slot.err = e.evaluate(caseID, txs, rule)
			slot.duration = time.Since(start)
		})
	}
	wg.Wait()

	result := &Result{
		CaseID:    caseID,
		Alerts:    []models.Alert{},
		Succeeded: []string{},
		Failed:    []RuleFailure{},
		Skipped:   []string{},
		Durations: make(map[string]time.Duration),
	}

	for i, rule := range rules {
		o := outcomes[i]
		switch {
		case o.skipped:
			result.Skipped = append(result.Skipped, rule.ID)
			instrument.DetectorRuns.WithLabelValues(rule.ID, instrument.StatusSkipped).Inc()
		case o.err != nil:
			result.Failed = append(result.Failed, RuleFailure{RuleID: rule.ID, Reason: o.err.Error(), Err: o.err})
			result.Err = multierr.Append(result.Err, o.err)
			instrument.DetectorRuns.WithLabelValues(rule.ID, instrument.StatusFailed).Inc()
			log.WithError(o.err).WithField("rule_id", rule.ID).Error("Rule evaluation failed")
		default:
			result.Succeeded = append(result.Succeeded, rule.ID)
			result.Alerts = append(result.Alerts, o.alerts...)
			result.Durations[rule.ID] = o.duration
			instrument.DetectorRuns.WithLabelValues(rule.ID, instrument.StatusSucceeded).Inc()
			instrument.DetectorDuration.WithLabelValues(rule.ID).Observe(o.duration.Seconds())
			instrument.AlertsEmitted.WithLabelValues(rule.ID).Add(float64(len(o.alerts)))
		}
	}

	log.WithFields(logger.Fields{
		"alerts":    len(result.Alerts),
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
		"skipped":   len(result.Skipped),
	}).Info("Rule evaluation completed")

	return result
}

// evaluate runs a single rule, converting panics into detector errors.
func (e *Engine) evaluate(caseID string, txs []models.Transaction, rule models.Rule) ([]models.Alert, error) {
	if err := rule.Validate(); err != nil {
		return nil, errors.DetectorError(errors.CodeInvalidParameters, rule.ID, err)
	}

	detector, ok := e.registry.Lookup(rule.DetectorID())
	if !ok {
		return nil, errors.DetectorError(errors.CodeUnknownDetector, rule.ID,
			fmt.Errorf("detector %q is not registered", rule.DetectorID())).
			WithSuggestion("use one of: " + strings.Join(e.registry.IDs(), ", "))
	}

	var (
		out *detectors.Output
		err error
		pc  panics.Catcher
	)
	pc.Try(func() {
		out, err = detector.Detect(txs, rule.Clone().Parameters)
	})
	if r := pc.Recovered(); r != nil {
		return nil, errors.DetectorError(errors.CodeDetectorPanic, rule.ID, r.AsError())
	}
	if err != nil {
		return nil, errors.DetectorError(errors.CodeInvalidParameters, rule.ID, err)
	}

	return buildAlerts(caseID, rule, out), nil
}

// Check validates a rule without transactions: its structure, its detector
// and its parameters. It returns the first problem as a DetectorError.
func (e *Engine) Check(rule models.Rule) error {
	_, err := e.evaluate("", nil, rule)
	return err
}

func buildAlerts(caseID string, rule models.Rule, out *detectors.Output) []models.Alert {
	if out == nil {
		return nil
	}
	alerts := make([]models.Alert, 0, len(out.Findings))
	for ordinal, f := range out.Findings {
		txIDs := append([]string(nil), f.TransactionIDs...)
		params := make(map[string]interface{}, len(out.Parameters))
		for k, v := range out.Parameters {
			params[k] = v
		}
		alerts = append(alerts, models.Alert{
			ID:             models.AlertID(caseID, rule.ID, ordinal, txIDs),
			CaseID:         caseID,
			RuleID:         rule.ID,
			Type:           rule.DetectorID(),
			Description:    f.Description,
			Severity:       rule.Severity,
			EvidenceCount:  len(txIDs),
			TransactionIDs: txIDs,
			Parameters:     params,
			Score:          f.Score,
			Explanation:    f.Explanation,
		})
	}
	return alerts
}
