package detectors

import (
	"fmt"

	"golang-redflag-service/internal/models"

	"github.com/shopspring/decimal"
)

// CashIntensityParams configures the cash-share detector.
type CashIntensityParams struct {
	Threshold  decimal.Decimal `mapstructure:"threshold"`
	Percentage decimal.Decimal `mapstructure:"percentage"`
}

// DefaultCashIntensityParams returns the documented defaults.
func DefaultCashIntensityParams() CashIntensityParams {
	return CashIntensityParams{
		Threshold:  decimal.NewFromInt(50000),
		Percentage: decimal.NewFromInt(70),
	}
}

func (p CashIntensityParams) validate() error {
	return validate(
		check{!p.Threshold.IsNegative(), "threshold must not be negative"},
		check{!p.Percentage.IsNegative() && p.Percentage.LessThanOrEqual(decimal.NewFromInt(100)), "percentage must be between 0 and 100"},
	)
}

var hundred = decimal.NewFromInt(100)

// CashIntensity flags holders whose volume is dominated by cash. Both the
// absolute cash sum and the cash share of total volume must exceed their
// thresholds; the finding covers all of the holder's cash transactions.
type CashIntensity struct{}

func (CashIntensity) ID() string { return models.RuleCashIntensity }

func (CashIntensity) Detect(txs []models.Transaction, raw map[string]interface{}) (*Output, error) {
	p := DefaultCashIntensityParams()
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	order, groups := groupBy(sortedCopy(txs), func(tx *models.Transaction) (string, bool) {
		return tx.HolderDocument, true
	})

	out := &Output{Parameters: toMap(p)}

	for _, holder := range order {
		total, cashSum := decimal.Zero, decimal.Zero
		var cash []models.Transaction
		for _, tx := range groups[holder] {
			total = total.Add(tx.Amount)
			if tx.Method == models.MethodCash {
				cashSum = cashSum.Add(tx.Amount)
				cash = append(cash, tx)
			}
		}
		if total.IsZero() || !cashSum.GreaterThan(p.Threshold) {
			continue
		}

		share := cashSum.Mul(hundred).Div(total)
		if !share.GreaterThan(p.Percentage) {
			continue
		}

		pct, _ := share.Float64()
		out.Findings = append(out.Findings, Finding{
			TransactionIDs: ids(cash),
			Score:          clampScore(pct),
			Description: fmt.Sprintf("Holder %s moved %s in cash, %s%% of total volume",
				holder, models.FormatAmount(cashSum), share.StringFixed(1)),
			Explanation: fmt.Sprintf("%d cash transactions totalling %s out of %s exceed the %s absolute and %s%% share limits.",
				len(cash), models.FormatAmount(cashSum), models.FormatAmount(total),
				models.FormatAmount(p.Threshold), p.Percentage.String()),
		})
	}

	return out, nil
}
