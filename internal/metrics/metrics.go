// Package metrics computes portfolio summaries over a case's transactions.
// Every sum is exact decimal arithmetic.
package metrics

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"golang-redflag-service/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultTopN is used when a filter does not set TopN.
const DefaultTopN = 10

// Filter narrows the transactions a summary covers. Zero values match
// everything.
type Filter struct {
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	Method    models.PaymentMethod
	TopN      int
}

// Match reports whether tx passes the filter. From and To are inclusive.
func (f Filter) Match(tx *models.Transaction) bool {
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	if f.MinAmount != nil && tx.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.Method != "" && tx.Method != f.Method {
		return false
	}
	return true
}

func (f Filter) topN() int {
	if f.TopN <= 0 {
		return DefaultTopN
	}
	return f.TopN
}

// CounterpartyTotal aggregates volume exchanged with one counterparty.
type CounterpartyTotal struct {
	Key      string
	Document string
	Name     string
	Total    decimal.Decimal
	Count    int
}

// DailyPoint holds credit and debit sums for one UTC day.
type DailyPoint struct {
	Day     string
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

// MethodShare holds volume and count for one payment method.
type MethodShare struct {
	Method models.PaymentMethod
	Amount decimal.Decimal
	Count  int
}

// Summary is the portfolio view of a transaction set.
type Summary struct {
	TransactionCount  int
	TotalCredits      decimal.Decimal
	TotalDebits       decimal.Decimal
	Balance           decimal.Decimal
	AverageTicket     decimal.Decimal
	FirstDate         time.Time
	LastDate          time.Time
	TopCounterparties []CounterpartyTotal
	Daily             []DailyPoint
	Methods           []MethodShare
}

// Sum adds the amounts of txs.
func Sum(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for i := range txs {
		total = total.Add(txs[i].Amount)
	}
	return total
}

// Average returns the mean amount of txs, zero for an empty slice. The
// result is not rounded.
func Average(txs []models.Transaction) decimal.Decimal {
	if len(txs) == 0 {
		return decimal.Zero
	}
	return Sum(txs).Div(decimal.NewFromInt(int64(len(txs))))
}

// Compute summarizes the transactions that pass filter.
func Compute(txs []models.Transaction, filter Filter) Summary {
	s := Summary{
		TotalCredits:  decimal.Zero,
		TotalDebits:   decimal.Zero,
		Balance:       decimal.Zero,
		AverageTicket: decimal.Zero,
	}

	counterparties := make(map[string]*CounterpartyTotal)
	daily := make(map[string]*DailyPoint)
	methods := make(map[models.PaymentMethod]*MethodShare)
	volume := decimal.Zero

	for i := range txs {
		tx := &txs[i]
		if !filter.Match(tx) {
			continue
		}
		s.TransactionCount++
		volume = volume.Add(tx.Amount)

		if s.FirstDate.IsZero() || tx.Date.Before(s.FirstDate) {
			s.FirstDate = tx.Date
		}
		if tx.Date.After(s.LastDate) {
			s.LastDate = tx.Date
		}

		day := tx.Date.UTC().Format("2006-01-02")
		point, ok := daily[day]
		if !ok {
			point = &DailyPoint{Day: day, Credits: decimal.Zero, Debits: decimal.Zero}
			daily[day] = point
		}
		if tx.IsCredit() {
			s.TotalCredits = s.TotalCredits.Add(tx.Amount)
			point.Credits = point.Credits.Add(tx.Amount)
		} else {
			s.TotalDebits = s.TotalDebits.Add(tx.Amount)
			point.Debits = point.Debits.Add(tx.Amount)
		}

		share, ok := methods[tx.Method]
		if !ok {
			share = &MethodShare{Method: tx.Method, Amount: decimal.Zero}
			methods[tx.Method] = share
		}
		share.Amount = share.Amount.Add(tx.Amount)
		share.Count++

		key := counterpartyKey(tx)
		cp, ok := counterparties[key]
		if !ok {
			cp = &CounterpartyTotal{Key: key, Document: tx.CounterpartyDocument, Name: tx.Counterparty, Total: decimal.Zero}
			counterparties[key] = cp
		}
		if cp.Name == "" {
			cp.Name = tx.Counterparty
		}
		cp.Total = cp.Total.Add(tx.Amount)
		cp.Count++
	}

	s.Balance = s.TotalCredits.Sub(s.TotalDebits)
	if s.TransactionCount > 0 {
		s.AverageTicket = volume.Div(decimal.NewFromInt(int64(s.TransactionCount))).RoundBank(models.AmountScale)
	}

	s.TopCounterparties = topCounterparties(counterparties, filter.topN())

	s.Daily = make([]DailyPoint, 0, len(daily))
	for _, p := range daily {
		s.Daily = append(s.Daily, *p)
	}
	sort.Slice(s.Daily, func(i, j int) bool { return s.Daily[i].Day < s.Daily[j].Day })

	for _, m := range models.PaymentMethods {
		if share, ok := methods[m]; ok {
			s.Methods = append(s.Methods, *share)
		}
	}

	return s
}

// counterpartyKey groups by document, falling back to the folded name.
func counterpartyKey(tx *models.Transaction) string {
	if tx.CounterpartyDocument != "" {
		return tx.CounterpartyDocument
	}
	if name := strings.ToUpper(strings.TrimSpace(tx.Counterparty)); name != "" {
		return name
	}
	return "(unknown)"
}

func topCounterparties(all map[string]*CounterpartyTotal, n int) []CounterpartyTotal {
	out := make([]CounterpartyTotal, 0, len(all))
	for _, cp := range all {
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// MarshalJSON renders amounts at the canonical scale.
func (c CounterpartyTotal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key      string `json:"key"`
		Document string `json:"document,omitempty"`
		Name     string `json:"name,omitempty"`
		Total    string `json:"total"`
		Count    int    `json:"count"`
	}{c.Key, c.Document, c.Name, models.FormatAmount(c.Total), c.Count})
}

// MarshalJSON renders amounts at the canonical scale.
func (p DailyPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Day     string `json:"day"`
		Credits string `json:"credits"`
		Debits  string `json:"debits"`
	}{p.Day, models.FormatAmount(p.Credits), models.FormatAmount(p.Debits)})
}

// MarshalJSON renders amounts at the canonical scale.
func (m MethodShare) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Method models.PaymentMethod `json:"method"`
		Amount string               `json:"amount"`
		Count  int                  `json:"count"`
	}{m.Method, models.FormatAmount(m.Amount), m.Count})
}

// MarshalJSON renders amounts at the canonical scale and dates in UTC.
func (s Summary) MarshalJSON() ([]byte, error) {
	var first, last string
	if !s.FirstDate.IsZero() {
		first = s.FirstDate.UTC().Format(time.RFC3339)
		last = s.LastDate.UTC().Format(time.RFC3339)
	}
	return json.Marshal(struct {
		TransactionCount  int                 `json:"transactionCount"`
		TotalCredits      string              `json:"totalCredits"`
		TotalDebits       string              `json:"totalDebits"`
		Balance           string              `json:"balance"`
		AverageTicket     string              `json:"averageTicket"`
		FirstDate         string              `json:"firstDate,omitempty"`
		LastDate          string              `json:"lastDate,omitempty"`
		TopCounterparties []CounterpartyTotal `json:"topCounterparties"`
		Daily             []DailyPoint        `json:"daily"`
		Methods           []MethodShare       `json:"methods"`
	}{
		TransactionCount:  s.TransactionCount,
		TotalCredits:      models.FormatAmount(s.TotalCredits),
		TotalDebits:       models.FormatAmount(s.TotalDebits),
		Balance:           models.FormatAmount(s.Balance),
		AverageTicket:     models.FormatAmount(s.AverageTicket),
		FirstDate:         first,
		LastDate:          last,
		TopCounterparties: s.TopCounterparties,
		Daily:             s.Daily,
		Methods:           s.Methods,
	})
}
