package store

import (
	"context"
	"encoding/json"

	"golang-redflag-service/internal/ledger"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"
)

func load(ctx context.Context, s CaseStore, caseID string, kind Kind, out interface{}) error {
	body, err := s.Get(ctx, caseID, kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.PersistenceError(errors.CodeStoreCorrupted, caseID, string(kind), err)
	}
	return nil
}

func save(ctx context.Context, s CaseStore, caseID string, kind Kind, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode "+string(kind), err)
	}
	return s.Put(ctx, caseID, kind, body)
}

// LoadLedger returns the stored ledger of caseID, or an empty one when the
// case has none yet.
func LoadLedger(ctx context.Context, s CaseStore, caseID string) (*ledger.Ledger, error) {
	var doc ledger.Document
	err := load(ctx, s, caseID, KindLedger, &doc)
	if errors.IsCode(err, errors.CodeNotFound) {
		return ledger.New(caseID), nil
	}
	if err != nil {
		return nil, err
	}
	if doc.CaseID != caseID {
		return nil, errors.PersistenceError(errors.CodeStoreCorrupted, caseID, string(KindLedger), nil).
			WithContext("stored_case_id", doc.CaseID)
	}
	l, err := ledger.FromDocument(doc)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreCorrupted, caseID, string(KindLedger), err)
	}
	return l, nil
}

// SaveLedger writes the whole ledger in one Put.
func SaveLedger(ctx context.Context, s CaseStore, l *ledger.Ledger) error {
	return save(ctx, s, l.CaseID(), KindLedger, l.Document())
}

// LoadRules returns the case's stored rules. A case without stored rules
// yields a CodeNotFound persistence error.
func LoadRules(ctx context.Context, s CaseStore, caseID string) ([]models.Rule, error) {
	var rules []models.Rule
	if err := load(ctx, s, caseID, KindRules, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// SaveRules stores the case's rule set.
func SaveRules(ctx context.Context, s CaseStore, caseID string, rules []models.Rule) error {
	return save(ctx, s, caseID, KindRules, rules)
}

// LoadAlerts returns the latest alert set stored for caseID.
func LoadAlerts(ctx context.Context, s CaseStore, caseID string) (*models.AlertSet, error) {
	set := &models.AlertSet{}
	if err := load(ctx, s, caseID, KindAlerts, set); err != nil {
		return nil, err
	}
	return set, nil
}

// SaveAlerts replaces the stored alert set of set.CaseID.
func SaveAlerts(ctx context.Context, s CaseStore, set *models.AlertSet) error {
	return save(ctx, s, set.CaseID, KindAlerts, set)
}
