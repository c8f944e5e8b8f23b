// Package normalize turns heterogeneous source rows into canonical
// transactions.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang-redflag-service/internal/instrument"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// rowNamespace seeds ids for rows that do not carry one.
var rowNamespace = uuid.MustParse("0c6f5a3e-2d4b-4f7a-8e19-6b1d7c9a4e52")

// Batch is the set of rows extracted from one source artifact.
type Batch struct {
	CaseID     string
	EvidenceID string
	// HolderDocument is used for rows that do not name their holder.
	HolderDocument string
	Rows           []SourceRow
}

// Warning records a default substitution or a dropped row.
type Warning struct {
	Row    int              `json:"row"`
	Field  string           `json:"field,omitempty"`
	Value  string           `json:"value,omitempty"`
	Reason string           `json:"reason"`
	Code   errors.ErrorCode `json:"code"`
}

func (w Warning) String() string {
	if w.Field == "" {
		return fmt.Sprintf("row %d: %s", w.Row, w.Reason)
	}
	return fmt.Sprintf("row %d: %s %q: %s", w.Row, w.Field, w.Value, w.Reason)
}

// Result is the outcome of normalizing one batch.
type Result struct {
	Transactions []models.Transaction `json:"transactions"`
	Warnings     []Warning            `json:"warnings,omitempty"`
	// Kept counts every produced transaction, Defaulted the subset that
	// carries at least one audit flag.
	Kept      int `json:"kept"`
	Defaulted int `json:"defaulted"`
	Dropped   int `json:"dropped"`
}

// Options configures a Normalizer.
type Options struct {
	// Location is used for timestamps without an explicit zone. Defaults to UTC.
	Location *time.Location
	// Now supplies the substitute for missing dates. Defaults to time.Now.
	Now    func() time.Time
	Logger logger.Logger
}

// Normalizer converts batches into canonical transactions. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
	log logger.Logger
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	n := &Normalizer{loc: opts.Location, now: opts.Now, log: opts.Logger}
	if n.loc == nil {
		n.loc = time.UTC
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.log == nil {
		n.log = logger.GetGlobalLogger()
	}
	n.log = n.log.WithComponent("normalize")
	return n
}

// Normalize converts every row of the batch. Row-level problems never fail
// the batch: fields fall back to defaults and the row is flagged, or the row
// is dropped when neither a date nor an amount is usable.
func (n *Normalizer) Normalize(batch Batch) (*Result, error) {
	if strings.TrimSpace(batch.CaseID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "caseId", batch.CaseID, nil)
	}

	log := n.log.WithFields(logger.Fields{
		"case_id":     batch.CaseID,
		"evidence_id": batch.EvidenceID,
	})

	result := &Result{Transactions: make([]models.Transaction, 0, len(batch.Rows))}
	for i, row := range batch.Rows {
		tx, warnings, ok := n.normalizeRow(batch, i, row)
		for _, w := range warnings {
			log.Debugf("%s", w)
		}
		result.Warnings = append(result.Warnings, warnings...)

		if !ok {
			result.Dropped++
			instrument.RowsNormalized.WithLabelValues(instrument.OutcomeDropped).Inc()
			continue
		}
		result.Kept++
		if tx.IsDefaulted() {
			result.Defaulted++
			instrument.RowsNormalized.WithLabelValues(instrument.OutcomeDefaulted).Inc()
		} else {
			instrument.RowsNormalized.WithLabelValues(instrument.OutcomeKept).Inc()
		}
		result.Transactions = append(result.Transactions, tx)
	}

	log.Infof("normalized %d rows: %d kept, %d defaulted, %d dropped",
		len(batch.Rows), result.Kept, result.Defaulted, result.Dropped)

	return result, nil
}

func (n *Normalizer) normalizeRow(batch Batch, index int, row SourceRow) (models.Transaction, []Warning, bool) {
	position := index + 1
	if row != nil && row.Position() > 0 {
		position = row.Position()
	}

	var warnings []Warning
	warn := func(field, value, reason string, code errors.ErrorCode) {
		warnings = append(warnings, Warning{Row: position, Field: field, Value: value, Reason: reason, Code: code})
	}

	raw, err := extract(row)
	if err != nil {
		warn("", "", err.Error(), errors.CodeRowDropped)
		return models.Transaction{}, warnings, false
	}

	date, dateErr := ParseDate(raw.Date, n.loc)
	amount, negative, amountErr := ParseAmount(raw.Amount)
	if dateErr != nil && amountErr != nil {
		warn("", "", "no usable date or amount", errors.CodeRowDropped)
		return models.Transaction{}, warnings, false
	}

	tx := models.Transaction{
		CaseID:               batch.CaseID,
		HolderDocument:       NormalizeDocument(raw.HolderDocument),
		CounterpartyDocument: NormalizeDocument(raw.CounterpartyDocument),
		Counterparty:         raw.Counterparty,
		Bank:                 raw.Bank,
		Agency:               raw.Agency,
		Account:              raw.Account,
		Description:          raw.Description,
		EvidenceID:           batch.EvidenceID,
	}
	if tx.HolderDocument == "" {
		tx.HolderDocument = NormalizeDocument(batch.HolderDocument)
	}

	if dateErr != nil {
		date = n.now().UTC()
		tx.Flags = append(tx.Flags, models.FlagDateDefaulted)
		warn("date", raw.Date, dateErr.Error(), errors.CodeFieldDefaulted)
	}
	tx.Date = date

	if amountErr != nil {
		amount = decimal.Zero
		tx.Flags = append(tx.Flags, models.FlagAmountDefaulted)
		warn("amount", raw.Amount, amountErr.Error(), errors.CodeFieldDefaulted)
	}
	tx.Amount = amount

	tx.Type = n.resolveType(raw, negative, &tx, warn)
	tx.Method = n.resolveMethod(raw, &tx, warn)

	tx.ID = strings.TrimSpace(raw.ID)
	if tx.ID == "" {
		key := batch.CaseID + "|" + batch.EvidenceID + "|" + strconv.Itoa(position)
		tx.ID = uuid.NewSHA1(rowNamespace, []byte(key)).String()
	}

	return tx, warnings, true
}

// resolveType prefers the explicit type field, then the amount sign, then
// keywords in the description.
func (n *Normalizer) resolveType(raw rawFields, negative bool, tx *models.Transaction, warn func(string, string, string, errors.ErrorCode)) models.TransactionType {
	if raw.Type != "" {
		if t, ok := ParseType(raw.Type); ok {
			return t
		}
	}
	if negative {
		return models.TransactionTypeDebit
	}
	if t, ok := typeFromText(raw.Description); ok {
		return t
	}
	tx.Flags = append(tx.Flags, models.FlagTypeDefaulted)
	warn("type", raw.Type, "unrecognized direction, defaulting to debit", errors.CodeFieldDefaulted)
	return models.TransactionTypeDebit
}

func (n *Normalizer) resolveMethod(raw rawFields, tx *models.Transaction, warn func(string, string, string, errors.ErrorCode)) models.PaymentMethod {
	if m, ok := ParseMethod(raw.Method); ok {
		return m
	}
	if m, ok := ParseMethod(raw.Description); ok {
		return m
	}
	tx.Flags = append(tx.Flags, models.FlagMethodDefaulted)
	warn("method", raw.Method, "unrecognized payment method, defaulting to other", errors.CodeFieldDefaulted)
	return models.MethodOther
}
