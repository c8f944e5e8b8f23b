// Package alerts turns engine results into the stored alert set of a case.
package alerts

import (
	"context"
	"time"

	"golang-redflag-service/internal/engine"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/internal/store"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"
)

// Collect builds the alert set for an engine result.
func Collect(res *engine.Result, ledgerVersion uint64, generatedAt time.Time) *models.AlertSet {
	alerts := append([]models.Alert{}, res.Alerts...)
	return &models.AlertSet{
		CaseID:        res.CaseID,
		GeneratedAt:   generatedAt.UTC(),
		LedgerVersion: ledgerVersion,
		Alerts:        alerts,
		Counts:        models.CountAlerts(alerts),
		Succeeded:     append([]string{}, res.Succeeded...),
		Failed:        res.FailedIDs(),
		Skipped:       append([]string{}, res.Skipped...),
	}
}

// Aggregator replaces a case's alert set after every analysis run.
type Aggregator struct {
	store  store.CaseStore
	now    func() time.Time
	logger logger.Logger
}

// New creates an Aggregator writing to s.
func New(s store.CaseStore, log logger.Logger) *Aggregator {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Aggregator{
		store:  s,
		now:    time.Now,
		logger: log.WithComponent("alerts"),
	}
}

// Replace stores the alert set of res in a single write. If the write fails
// the previously stored set is left as it was.
func (a *Aggregator) Replace(ctx context.Context, res *engine.Result, ledgerVersion uint64) (*models.AlertSet, error) {
	set := Collect(res, ledgerVersion, a.now())
	if err := store.SaveAlerts(ctx, a.store, set); err != nil {
		a.logger.WithError(err).WithField("case_id", res.CaseID).Error("Failed to store alert set")
		return nil, err
	}
	a.logger.WithFields(logger.Fields{
		"case_id": res.CaseID,
		"alerts":  set.Counts.Total,
	}).Debug("Alert set replaced")
	return set, nil
}

// Current returns the stored alert set of caseID. A case never analyzed
// yields an empty set with a zero GeneratedAt.
func (a *Aggregator) Current(ctx context.Context, caseID string) (*models.AlertSet, error) {
	set, err := store.LoadAlerts(ctx, a.store, caseID)
	if errors.IsCode(err, errors.CodeNotFound) {
		return &models.AlertSet{
			CaseID:    caseID,
			Alerts:    []models.Alert{},
			Counts:    models.CountAlerts(nil),
			Succeeded: []string{},
			Failed:    []string{},
			Skipped:   []string{},
		}, nil
	}
	return set, err
}
