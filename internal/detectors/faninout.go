package detectors

import (
	"fmt"

	"golang-redflag-service/internal/models"
)

// FanInOutParams configures the counterparty-burst detector.
type FanInOutParams struct {
	Threshold   int     `mapstructure:"threshold"`
	WindowHours float64 `mapstructure:"windowHours"`
}

// DefaultFanInOutParams returns the documented defaults.
func DefaultFanInOutParams() FanInOutParams {
	return FanInOutParams{Threshold: 10, WindowHours: 168}
}

func (p FanInOutParams) validate() error {
	return validate(
		check{p.Threshold >= 1, "threshold must be at least 1"},
		check{p.WindowHours > 0, "windowHours must be positive"},
	)
}

// FanInOut flags holders that deal with many distinct counterparties in a
// short period. For every transaction of a holder a window of windowHours is
// opened; it is reported when it holds at least threshold transactions and
// at least threshold distinct counterparty documents. Transactions without a
// counterparty document count toward volume but not toward distinctness.
type FanInOut struct{}

func (FanInOut) ID() string { return models.RuleFanInOut }

func (FanInOut) Detect(txs []models.Transaction, raw map[string]interface{}) (*Output, error) {
	p := DefaultFanInOutParams()
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	order, groups := groupBy(sortedCopy(txs), func(tx *models.Transaction) (string, bool) {
		return tx.HolderDocument, true
	})

	window := hours(p.WindowHours)
	out := &Output{Parameters: toMap(p)}

	for _, holder := range order {
		group := groups[holder]
		seen := make(map[string]int)
		end := 0

		for i := range group {
			if i > 0 {
				if doc := group[i-1].CounterpartyDocument; doc != "" {
					if seen[doc]--; seen[doc] == 0 {
						delete(seen, doc)
					}
				}
			}
			if end < i {
				end = i
			}
			for end < len(group) && group[end].Date.Sub(group[i].Date) <= window {
				if doc := group[end].CounterpartyDocument; doc != "" {
					seen[doc]++
				}
				end++
			}

			count, unique := end-i, len(seen)
			if count < p.Threshold || unique < p.Threshold {
				continue
			}

			in, outgoing := 0, 0
			for _, tx := range group[i:end] {
				if tx.IsCredit() {
					in++
				} else {
					outgoing++
				}
			}

			out.Findings = append(out.Findings, Finding{
				TransactionIDs: ids(group[i:end]),
				Score:          clampScore(float64(unique) / float64(p.Threshold) * 60),
				Description: fmt.Sprintf("Holder %s dealt with %d distinct counterparties in %d transactions within %gh",
					holder, unique, count, p.WindowHours),
				Explanation: fmt.Sprintf("%d incoming and %d outgoing transactions between %s and %s reached the threshold of %d counterparties.",
					in, outgoing, group[i].Date.Format("2006-01-02 15:04"), group[end-1].Date.Format("2006-01-02 15:04"), p.Threshold),
			})
		}
	}

	return out, nil
}
