// Package ledger holds the per-case set of canonical transactions.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"golang-redflag-service/internal/instrument"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"

	"go.uber.org/atomic"
)

// MergeStats reports how a merge changed the ledger.
type MergeStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Ledger is an id-keyed set of transactions for one case. Reads always see
// the transactions ordered by date then id.
type Ledger struct {
	caseID  string
	mu      sync.RWMutex
	byID    map[string]models.Transaction
	version *atomic.Uint64
}

// New creates an empty ledger for caseID.
func New(caseID string) *Ledger {
	return &Ledger{
		caseID:  caseID,
		byID:    make(map[string]models.Transaction),
		version: atomic.NewUint64(0),
	}
}

// CaseID returns the owning case.
func (l *Ledger) CaseID() string {
	return l.caseID
}

// Version increases by one on every merge that changed the ledger.
func (l *Ledger) Version() uint64 {
	return l.version.Load()
}

// Len returns the number of transactions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// Get looks a transaction up by id.
func (l *Ledger) Get(id string) (models.Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.byID[id]
	return tx, ok
}

// Merge inserts new ids and overwrites existing ones, last write wins. Within
// one call a later transaction with a repeated id replaces the earlier one.
// The batch is validated first so an invalid transaction leaves the ledger
// untouched.
func (l *Ledger) Merge(txs []models.Transaction) (MergeStats, error) {
	for i := range txs {
		if txs[i].CaseID != l.caseID {
			return MergeStats{}, errors.ValidationError(errors.CodeInvalidValue, "caseId", txs[i].CaseID,
				fmt.Errorf("transaction %s belongs to case %q, ledger is %q", txs[i].ID, txs[i].CaseID, l.caseID))
		}
		if err := txs[i].Validate(); err != nil {
			return MergeStats{}, errors.ValidationError(errors.CodeInvalidValue, "transaction", txs[i].ID, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var stats MergeStats
	for _, tx := range txs {
		if _, exists := l.byID[tx.ID]; exists {
			stats.Updated++
		} else {
			stats.Inserted++
		}
		l.byID[tx.ID] = tx
	}
	if len(txs) > 0 {
		l.version.Inc()
	}

	instrument.TransactionsMerged.WithLabelValues("inserted").Add(float64(stats.Inserted))
	instrument.TransactionsMerged.WithLabelValues("updated").Add(float64(stats.Updated))

	return stats, nil
}

// Snapshot returns a sorted copy of every transaction. The copy is safe to
// share across goroutines as long as nobody mutates it.
func (l *Ledger) Snapshot() []models.Transaction {
	l.mu.RLock()
	out := make([]models.Transaction, 0, len(l.byID))
	for _, tx := range l.byID {
		out = append(out, tx)
	}
	l.mu.RUnlock()

	SortTransactions(out)
	return out
}

// SortTransactions orders txs by date, ties broken by id.
func SortTransactions(txs []models.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		return models.SortKeyLess(&txs[i], &txs[j])
	})
}

// Document is the persisted form of a ledger.
type Document struct {
	CaseID       string               `json:"caseId"`
	Version      uint64               `json:"version"`
	Transactions []models.Transaction `json:"transactions"`
}

// Document captures the ledger for persistence.
func (l *Ledger) Document() Document {
	return Document{
		CaseID:       l.caseID,
		Version:      l.Version(),
		Transactions: l.Snapshot(),
	}
}

// FromDocument rebuilds a ledger from its persisted form.
func FromDocument(doc Document) (*Ledger, error) {
	l := New(doc.CaseID)
	if _, err := l.Merge(doc.Transactions); err != nil {
		return nil, err
	}
	l.version.Store(doc.Version)
	return l, nil
}
