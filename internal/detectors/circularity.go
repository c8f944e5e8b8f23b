package detectors

import (
	"fmt"

	"golang-redflag-service/internal/models"

	"github.com/shopspring/decimal"
)

// CircularityParams configures the three-hop cycle detector.
type CircularityParams struct {
	WindowHours         float64 `mapstructure:"windowHours"`
	SimilarityThreshold float64 `mapstructure:"similarityThreshold"`
}

// DefaultCircularityParams returns the documented defaults.
func DefaultCircularityParams() CircularityParams {
	return CircularityParams{WindowHours: 168, SimilarityThreshold: 0.9}
}

func (p CircularityParams) validate() error {
	return validate(
		check{p.WindowHours > 0, "windowHours must be positive"},
		check{p.SimilarityThreshold >= 0 && p.SimilarityThreshold <= 1, "similarityThreshold must be between 0 and 1"},
	)
}

var three = decimal.NewFromInt(3)

// Circularity looks for funds returning to their origin in exactly three
// hops: A pays B, B pays C, C pays A. The three debits must be distinct
// parties, appear in (date, id) order and fall within windowHours of the
// first one. Similarity is the smallest amount divided by the mean of the
// three; cycles at or above similarityThreshold are reported.
type Circularity struct{}

func (Circularity) ID() string { return models.RuleCircularity }

func (Circularity) Detect(txs []models.Transaction, raw map[string]interface{}) (*Output, error) {
	p := DefaultCircularityParams()
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	// Debits in order, indexed by the paying holder.
	order, byHolder := groupBy(sortedCopy(txs), func(tx *models.Transaction) (string, bool) {
		return tx.HolderDocument, tx.IsDebit() && tx.HolderDocument != "" && tx.CounterpartyDocument != ""
	})

	window := hours(p.WindowHours)
	threshold := decimal.NewFromFloat(p.SimilarityThreshold)
	out := &Output{Parameters: toMap(p)}

	for _, holderA := range order {
		for _, a := range byHolder[holderA] {
			holderB := a.CounterpartyDocument
			if holderB == holderA {
				continue
			}
			for _, b := range byHolder[holderB] {
				if !models.SortKeyLess(&a, &b) {
					continue
				}
				if b.Date.Sub(a.Date) > window {
					break
				}
				holderC := b.CounterpartyDocument
				if holderC == holderA || holderC == holderB {
					continue
				}
				for _, c := range byHolder[holderC] {
					if !models.SortKeyLess(&b, &c) {
						continue
					}
					if c.Date.Sub(a.Date) > window {
						break
					}
					if c.CounterpartyDocument != holderA {
						continue
					}

					mean := a.Amount.Add(b.Amount).Add(c.Amount).Div(three)
					if mean.IsZero() {
						continue
					}
					low := decimal.Min(a.Amount, b.Amount, c.Amount)
					similarity := low.Div(mean)
					if similarity.LessThan(threshold) {
						continue
					}

					sim, _ := similarity.Float64()
					out.Findings = append(out.Findings, Finding{
						TransactionIDs: []string{a.ID, b.ID, c.ID},
						Score:          clampScore(sim * 100),
						Description: fmt.Sprintf("Funds cycled %s -> %s -> %s -> %s within %s",
							holderA, holderB, holderC, holderA, c.Date.Sub(a.Date).String()),
						Explanation: fmt.Sprintf("Transfers of %s, %s and %s closed a loop with amount similarity %s.",
							models.FormatAmount(a.Amount), models.FormatAmount(b.Amount), models.FormatAmount(c.Amount),
							similarity.StringFixed(4)),
					})
				}
			}
		}
	}

	return out, nil
}
