// Package detectors implements the red-flag rules. Every detector is a pure
// function of a transaction snapshot and its rule parameters: detectors never
// mutate their input and keep no state between calls, so they can run in
// parallel over the same slice.
package detectors

import (
	"math"
	"sort"
	"time"

	"golang-redflag-service/internal/models"
)

// Finding is one detector hit before it is turned into an alert.
type Finding struct {
	TransactionIDs []string
	Score          float64
	Description    string
	Explanation    string
}

// Output is what a detector returns for one rule evaluation.
type Output struct {
	// Parameters are the effective values after defaults were applied.
	Parameters map[string]interface{}
	Findings   []Finding
}

// Detector evaluates one kind of red flag.
type Detector interface {
	ID() string
	Detect(txs []models.Transaction, params map[string]interface{}) (*Output, error)
}

// Registry maps detector ids to implementations.
type Registry map[string]Detector

// Builtin returns a registry with the five built-in detectors.
func Builtin() Registry {
	r := Registry{}
	for _, d := range []Detector{
		Structuring{},
		Circularity{},
		FanInOut{},
		ProfileDrift{},
		CashIntensity{},
	} {
		r[d.ID()] = d
	}
	return r
}

// Lookup returns the detector registered under id.
func (r Registry) Lookup(id string) (Detector, bool) {
	d, ok := r[id]
	return d, ok
}

// IDs lists the registered detector ids in lexical order.
func (r Registry) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// clampScore bounds a score to [0, 100] with two decimals.
func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 100 {
		s = 100
	}
	return math.Round(s*100) / 100
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// sortedCopy returns txs ordered by date then id without touching the input.
func sortedCopy(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		return models.SortKeyLess(&out[i], &out[j])
	})
	return out
}

// groupBy partitions sorted txs by key, keeping order inside each group.
// Group keys are returned in first-seen order.
func groupBy(txs []models.Transaction, key func(*models.Transaction) (string, bool)) ([]string, map[string][]models.Transaction) {
	groups := make(map[string][]models.Transaction)
	var order []string
	for i := range txs {
		k, ok := key(&txs[i])
		if !ok {
			continue
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], txs[i])
	}
	return order, groups
}

func ids(txs []models.Transaction) []string {
	out := make([]string, len(txs))
	for i := range txs {
		out[i] = txs[i].ID
	}
	return out
}
