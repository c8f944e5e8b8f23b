package detectors

import (
	"fmt"
	"strings"

	"golang-redflag-service/internal/models"

	"github.com/shopspring/decimal"
)

// StructuringParams configures the fractionation detector.
type StructuringParams struct {
	Threshold       decimal.Decimal `mapstructure:"threshold"`
	WindowHours     float64         `mapstructure:"windowHours"`
	MinTransactions int             `mapstructure:"minTransactions"`
	// Methods are the channels typically used to stay under reporting limits.
	Methods []string `mapstructure:"methods"`
}

// DefaultStructuringParams returns the documented defaults.
func DefaultStructuringParams() StructuringParams {
	return StructuringParams{
		Threshold:       decimal.NewFromInt(10000),
		WindowHours:     24,
		MinTransactions: 3,
		Methods:         []string{string(models.MethodPIX), string(models.MethodCash)},
	}
}

func (p StructuringParams) validate() error {
	return validate(
		check{p.Threshold.IsPositive(), "threshold must be positive"},
		check{p.WindowHours > 0, "windowHours must be positive"},
		check{p.MinTransactions >= 1, "minTransactions must be at least 1"},
		check{len(p.Methods) > 0, "methods must not be empty"},
	)
}

// Structuring flags runs of sub-threshold credits on the same channel.
//
// Credits are grouped by (holder, method). Every transaction opens a window
// reaching windowHours forward, end inclusive. When the window holds at least
// minTransactions credits below threshold those credits become one finding.
// Overlapping windows are reported separately, one per start point.
type Structuring struct{}

func (Structuring) ID() string { return models.RuleStructuring }

func (Structuring) Detect(txs []models.Transaction, raw map[string]interface{}) (*Output, error) {
	p := DefaultStructuringParams()
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	methods := make(map[models.PaymentMethod]bool, len(p.Methods))
	for _, m := range p.Methods {
		methods[models.PaymentMethod(m)] = true
	}

	order, groups := groupBy(sortedCopy(txs), func(tx *models.Transaction) (string, bool) {
		if !tx.IsCredit() || !methods[tx.Method] {
			return "", false
		}
		return tx.HolderDocument + "|" + string(tx.Method), true
	})

	window := hours(p.WindowHours)
	out := &Output{Parameters: toMap(p)}

	for _, key := range order {
		group := groups[key]

		// below[k] counts sub-threshold credits in group[:k].
		below := make([]int, len(group)+1)
		for k := range group {
			below[k+1] = below[k]
			if group[k].Amount.LessThan(p.Threshold) {
				below[k+1]++
			}
		}

		end := 0
		for i := range group {
			if end < i {
				end = i
			}
			for end < len(group) && group[end].Date.Sub(group[i].Date) <= window {
				end++
			}

			count := below[end] - below[i]
			if count < p.MinTransactions {
				continue
			}

			evidence := make([]models.Transaction, 0, count)
			total := decimal.Zero
			for _, tx := range group[i:end] {
				if tx.Amount.LessThan(p.Threshold) {
					evidence = append(evidence, tx)
					total = total.Add(tx.Amount)
				}
			}

			holder, method, _ := strings.Cut(key, "|")
			out.Findings = append(out.Findings, Finding{
				TransactionIDs: ids(evidence),
				Score:          clampScore(float64(count) / float64(p.MinTransactions) * 50),
				Description: fmt.Sprintf("%d %s credits below %s within %gh for holder %s",
					count, method, models.FormatAmount(p.Threshold), p.WindowHours, holder),
				Explanation: fmt.Sprintf("Credits totalling %s were split into %d transactions each under the %s threshold between %s and %s.",
					models.FormatAmount(total), count, models.FormatAmount(p.Threshold),
					evidence[0].Date.Format("2006-01-02 15:04"), evidence[len(evidence)-1].Date.Format("2006-01-02 15:04")),
			})
		}
	}

	return out, nil
}
