package detectors

import (
	"fmt"

	"golang-redflag-service/internal/metrics"
	"golang-redflag-service/internal/models"

	"github.com/shopspring/decimal"
)

// ProfileDriftParams configures the historical-profile detector.
type ProfileDriftParams struct {
	Multiplier  decimal.Decimal `mapstructure:"multiplier"`
	WindowHours float64         `mapstructure:"windowHours"`
	MinHistory  int             `mapstructure:"minHistory"`
}

// DefaultProfileDriftParams returns the documented defaults.
func DefaultProfileDriftParams() ProfileDriftParams {
	return ProfileDriftParams{
		Multiplier:  decimal.NewFromInt(5),
		WindowHours: 720,
		MinHistory:  10,
	}
}

func (p ProfileDriftParams) validate() error {
	return validate(
		check{p.Multiplier.IsPositive(), "multiplier must be positive"},
		check{p.WindowHours > 0, "windowHours must be positive"},
		check{p.MinHistory >= 2, "minHistory must be at least 2"},
	)
}

// ProfileDrift flags transactions far above a holder's usual amount.
//
// A holder needs at least minHistory transactions. Its chronologically sorted
// transactions are split 70/30 into a historical part and a recent tail. The
// baseline is the historical transactions dated within windowHours before the
// first recent one; every recent transaction above baseline mean times
// multiplier becomes its own finding.
type ProfileDrift struct{}

func (ProfileDrift) ID() string { return models.RuleProfileDrift }

func (ProfileDrift) Detect(txs []models.Transaction, raw map[string]interface{}) (*Output, error) {
	p := DefaultProfileDriftParams()
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	order, groups := groupBy(sortedCopy(txs), func(tx *models.Transaction) (string, bool) {
		return tx.HolderDocument, true
	})

	lookback := hours(p.WindowHours)
	out := &Output{Parameters: toMap(p)}

	for _, holder := range order {
		group := groups[holder]
		if len(group) < p.MinHistory {
			continue
		}

		split := len(group) * 7 / 10
		historical, recent := group[:split], group[split:]

		horizon := recent[0].Date.Add(-lookback)
		start := len(historical)
		for start > 0 && !historical[start-1].Date.Before(horizon) {
			start--
		}
		baseline := historical[start:]
		if len(baseline) == 0 {
			continue
		}

		mean := metrics.Average(baseline)
		if mean.IsZero() {
			continue
		}
		limit := mean.Mul(p.Multiplier)

		for _, tx := range recent {
			if !tx.Amount.GreaterThan(limit) {
				continue
			}
			ratio, _ := tx.Amount.Div(mean).Float64()
			out.Findings = append(out.Findings, Finding{
				TransactionIDs: []string{tx.ID},
				Score:          clampScore(ratio * 20),
				Description: fmt.Sprintf("Transaction of %s for holder %s is %sx its historical mean",
					models.FormatAmount(tx.Amount), holder, tx.Amount.Div(mean).StringFixed(1)),
				Explanation: fmt.Sprintf("Historical mean over %d transactions is %s; the limit at %sx is %s.",
					len(baseline), mean.StringFixed(2), p.Multiplier.String(), limit.StringFixed(2)),
			})
		}
	}

	return out, nil
}
