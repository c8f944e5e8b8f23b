// Package analyzer coordinates the work done for a case: ingesting sources
// into its ledger, running its rules, computing portfolio metrics and
// managing its rule configuration.
//
// Ingestion and rule updates take the case's write lock, so merges into one
// ledger are serialized. Analysis and metrics share the read lock and may
// run together, but never while a merge is in progress.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang-redflag-service/internal/alerts"
	"golang-redflag-service/internal/engine"
	"golang-redflag-service/internal/instrument"
	"golang-redflag-service/internal/ledger"
	"golang-redflag-service/internal/metrics"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/internal/rules"
	"golang-redflag-service/internal/store"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
)

// RuleSource supplies the rules of cases that have none stored.
type RuleSource interface {
	RulesFor(caseID string) []models.Rule
}

type builtinRules struct{}

func (builtinRules) RulesFor(string) []models.Rule { return rules.Defaults() }

// Options configures an Analyzer. Only Store is required.
type Options struct {
	Store      store.CaseStore
	Rules      RuleSource
	Engine     *engine.Engine
	Normalizer *normalize.Normalizer
	Logger     logger.Logger
}

// Analyzer is the case orchestrator.
type Analyzer struct {
	store      store.CaseStore
	rules      RuleSource
	engine     *engine.Engine
	normalizer *normalize.Normalizer
	alerts     *alerts.Aggregator
	logger     logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// IngestReport describes one ingested source.
type IngestReport struct {
	CaseID        string              `json:"caseId"`
	EvidenceID    string              `json:"evidenceId"`
	Rows          int                 `json:"rows"`
	Kept          int                 `json:"kept"`
	Defaulted     int                 `json:"defaulted"`
	Dropped       int                 `json:"dropped"`
	Inserted      int                 `json:"inserted"`
	Updated       int                 `json:"updated"`
	LedgerVersion uint64              `json:"ledgerVersion"`
	Warnings      []normalize.Warning `json:"warnings,omitempty"`
}

// Report is the outcome of one analysis run.
type Report struct {
	CaseID        string                   `json:"caseId"`
	Status        string                   `json:"status"`
	GeneratedAt   time.Time                `json:"generatedAt"`
	LedgerVersion uint64                   `json:"ledgerVersion"`
	Transactions  int                      `json:"transactions"`
	DefaultedRows int                      `json:"defaultedRows"`
	Alerts        []models.Alert           `json:"alerts"`
	Counts        models.AlertCounts       `json:"counts"`
	Succeeded     []string                 `json:"succeeded"`
	Failed        []engine.RuleFailure     `json:"failed"`
	Skipped       []string                 `json:"skipped"`
	Durations     map[string]time.Duration `json:"durations"`
	Summary       metrics.Summary          `json:"summary"`
	Duration      time.Duration            `json:"duration"`
}

// New creates an Analyzer.
func New(opts Options) (*Analyzer, error) {
	if opts.Store == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil).
			WithSuggestion("provide a case store")
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	a := &Analyzer{
		store:      opts.Store,
		rules:      opts.Rules,
		engine:     opts.Engine,
		normalizer: opts.Normalizer,
		alerts:     alerts.New(opts.Store, log),
		logger:     log.WithComponent("analyzer"),
		locks:      make(map[string]*sync.RWMutex),
	}
	if a.rules == nil {
		a.rules = builtinRules{}
	}
	if a.engine == nil {
		a.engine = engine.New(nil, log)
	}
	if a.normalizer == nil {
		a.normalizer = normalize.New(normalize.Options{Logger: log})
	}
	return a, nil
}

func (a *Analyzer) lock(caseID string) *sync.RWMutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[caseID]
	if !ok {
		l = &sync.RWMutex{}
		a.locks[caseID] = l
	}
	return l
}

func checkCase(caseID string) error {
	if strings.TrimSpace(caseID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "caseId", caseID, nil)
	}
	return nil
}

// Ingest normalizes a batch and merges it into the case ledger. The ledger
// is written back in a single Put, so a store failure leaves the stored
// ledger unchanged.
func (a *Analyzer) Ingest(ctx context.Context, batch normalize.Batch) (*IngestReport, error) {
	if err := checkCase(batch.CaseID); err != nil {
		return nil, err
	}

	log := a.logger.WithFields(logger.Fields{
		"case_id":     batch.CaseID,
		"evidence_id": batch.EvidenceID,
	})

	normalized, err := a.normalizer.Normalize(batch)
	if err != nil {
		return nil, err
	}

	l := a.lock(batch.CaseID)
	l.Lock()
	defer l.Unlock()

	led, err := store.LoadLedger(ctx, a.store, batch.CaseID)
	if err != nil {
		log.WithError(err).Error("Failed to load ledger")
		return nil, err
	}
	stats, err := led.Merge(normalized.Transactions)
	if err != nil {
		return nil, err
	}
	if err := store.SaveLedger(ctx, a.store, led); err != nil {
		log.WithError(err).Error("Failed to store ledger")
		return nil, err
	}

	report := &IngestReport{
		CaseID:        batch.CaseID,
		EvidenceID:    batch.EvidenceID,
		Rows:          len(batch.Rows),
		Kept:          normalized.Kept,
		Defaulted:     normalized.Defaulted,
		Dropped:       normalized.Dropped,
		Inserted:      stats.Inserted,
		Updated:       stats.Updated,
		LedgerVersion: led.Version(),
		Warnings:      normalized.Warnings,
	}
	log.WithFields(logger.Fields{
		"inserted": stats.Inserted,
		"updated":  stats.Updated,
		"version":  report.LedgerVersion,
	}).Info("Source ingested")
	return report, nil
}

// loadExisting returns the case ledger or a not-found error when nothing
// was ever ingested for it.
func (a *Analyzer) loadExisting(ctx context.Context, caseID string) (*ledger.Ledger, error) {
	led, err := store.LoadLedger(ctx, a.store, caseID)
	if err != nil {
		return nil, err
	}
	if led.Version() == 0 && led.Len() == 0 {
		return nil, errors.PersistenceError(errors.CodeNotFound, caseID, string(store.KindLedger), nil)
	}
	return led, nil
}

// Analyze runs the case's rules over its ledger, replaces its stored alert
// set and computes the portfolio summary alongside. Rule failures do not
// fail the run; they are listed in the report.
func (a *Analyzer) Analyze(ctx context.Context, caseID string) (*Report, error) {
	if err := checkCase(caseID); err != nil {
		return nil, err
	}
	start := time.Now()
	log := a.logger.WithField("case_id", caseID)

	l := a.lock(caseID)
	l.RLock()
	defer l.RUnlock()

	led, err := a.loadExisting(ctx, caseID)
	if err != nil {
		return nil, err
	}
	ruleSet, err := a.rulesFor(ctx, caseID)
	if err != nil {
		return nil, err
	}

	snapshot := led.Snapshot()

	var (
		summary metrics.Summary
		result  *engine.Result
		wg      conc.WaitGroup
	)
	wg.Go(func() { summary = metrics.Compute(snapshot, metrics.Filter{}) })
	wg.Go(func() { result = a.engine.Run(caseID, snapshot, ruleSet) })
	wg.Wait()

	set, err := a.alerts.Replace(ctx, result, led.Version())
	if err != nil {
		instrument.AnalysesRun.WithLabelValues(instrument.StatusFailed).Inc()
		return nil, err
	}

	defaulted := 0
	for i := range snapshot {
		if snapshot[i].IsDefaulted() {
			defaulted++
		}
	}

	report := &Report{
		CaseID:        caseID,
		Status:        status(result),
		GeneratedAt:   set.GeneratedAt,
		LedgerVersion: led.Version(),
		Transactions:  len(snapshot),
		DefaultedRows: defaulted,
		Alerts:        set.Alerts,
		Counts:        set.Counts,
		Succeeded:     result.Succeeded,
		Failed:        result.Failed,
		Skipped:       result.Skipped,
		Durations:     result.Durations,
		Summary:       summary,
		Duration:      time.Since(start),
	}
	instrument.AnalysesRun.WithLabelValues(report.Status).Inc()

	entry := log.WithFields(logger.Fields{
		"status":    report.Status,
		"alerts":    report.Counts.Total,
		"failed":    len(report.Failed),
		"defaulted": defaulted,
	})
	if result.Err != nil {
		entry.WithError(result.Err).Warn("Analysis completed with rule failures")
	} else {
		entry.Info("Analysis completed")
	}
	return report, nil
}

func status(res *engine.Result) string {
	switch {
	case res.Partial():
		return instrument.StatusPartial
	case len(res.Failed) > 0:
		return instrument.StatusFailed
	default:
		return instrument.StatusSucceeded
	}
}

// Metrics computes the portfolio summary of the case's transactions that
// match filter.
func (a *Analyzer) Metrics(ctx context.Context, caseID string, filter metrics.Filter) (*metrics.Summary, error) {
	if err := checkCase(caseID); err != nil {
		return nil, err
	}
	l := a.lock(caseID)
	l.RLock()
	defer l.RUnlock()

	led, err := a.loadExisting(ctx, caseID)
	if err != nil {
		return nil, err
	}
	summary := metrics.Compute(led.Snapshot(), filter)
	return &summary, nil
}

// Transactions returns the case's ledger in detection order.
func (a *Analyzer) Transactions(ctx context.Context, caseID string) ([]models.Transaction, error) {
	if err := checkCase(caseID); err != nil {
		return nil, err
	}
	l := a.lock(caseID)
	l.RLock()
	defer l.RUnlock()

	led, err := a.loadExisting(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return led.Snapshot(), nil
}

// Alerts returns the alert set of the latest analysis of the case.
func (a *Analyzer) Alerts(ctx context.Context, caseID string) (*models.AlertSet, error) {
	if err := checkCase(caseID); err != nil {
		return nil, err
	}
	return a.alerts.Current(ctx, caseID)
}

// Rules returns the effective rules of the case: stored ones if the case
// has been configured, otherwise the rule source's.
func (a *Analyzer) Rules(ctx context.Context, caseID string) ([]models.Rule, error) {
	if err := checkCase(caseID); err != nil {
		return nil, err
	}
	return a.rulesFor(ctx, caseID)
}

func (a *Analyzer) rulesFor(ctx context.Context, caseID string) ([]models.Rule, error) {
	stored, err := store.LoadRules(ctx, a.store, caseID)
	if errors.IsCode(err, errors.CodeNotFound) {
		return a.rules.RulesFor(caseID), nil
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// UpdateRules validates and stores a complete rule set for the case. Every
// rule is checked against its detector so bad parameters are rejected here
// instead of failing later analyses.
func (a *Analyzer) UpdateRules(ctx context.Context, caseID string, ruleSet []models.Rule) ([]models.Rule, error) {
	if err := checkCase(caseID); err != nil {
		return nil, err
	}

	var problems error
	seen := make(map[string]bool, len(ruleSet))
	for _, r := range ruleSet {
		if seen[r.ID] {
			problems = multierr.Append(problems, fmt.Errorf("rule %s listed twice", r.ID))
			continue
		}
		seen[r.ID] = true
		if err := a.engine.Check(r); err != nil {
			problems = multierr.Append(problems, err)
		}
	}
	if problems != nil {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "rules", len(ruleSet), problems)
	}

	ruleSet = models.CloneRules(ruleSet)

	l := a.lock(caseID)
	l.Lock()
	defer l.Unlock()

	if err := store.SaveRules(ctx, a.store, caseID, ruleSet); err != nil {
		a.logger.WithError(err).WithField("case_id", caseID).Error("Failed to store rules")
		return nil, err
	}
	a.logger.WithFields(logger.Fields{"case_id": caseID, "rules": len(ruleSet)}).Info("Case rules updated")
	return ruleSet, nil
}
