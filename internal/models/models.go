package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits every amount is stored with.
const AmountScale = 2

// TransactionType is the direction of a transaction relative to its holder.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeCredit || t == TransactionTypeDebit
}

// PaymentMethod is the payment channel of a transaction.
type PaymentMethod string

const (
	MethodPIX           PaymentMethod = "PIX"
	MethodWireImmediate PaymentMethod = "wire-immediate"
	MethodWireBatch     PaymentMethod = "wire-batch"
	MethodCash          PaymentMethod = "cash"
	MethodCard          PaymentMethod = "card"
	MethodBill          PaymentMethod = "bill"
	MethodOther         PaymentMethod = "other"
)

// PaymentMethods lists every method in display order.
var PaymentMethods = []PaymentMethod{
	MethodPIX,
	MethodWireImmediate,
	MethodWireBatch,
	MethodCash,
	MethodCard,
	MethodBill,
	MethodOther,
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid checks if the method is one of the known channels
func (m PaymentMethod) IsValid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

// Audit flags recorded when normalization substitutes a default.
const (
	FlagDateDefaulted   = "date_defaulted"
	FlagAmountDefaulted = "amount_defaulted"
	FlagTypeDefaulted   = "type_defaulted"
	FlagMethodDefaulted = "method_defaulted"
)

// Transaction is one economic event tied to one case. Values are treated as
// immutable once produced by normalization.
type Transaction struct {
	ID                   string          `json:"id"`
	CaseID               string          `json:"caseId"`
	Date                 time.Time       `json:"date"`
	Amount               decimal.Decimal `json:"amount"`
	Type                 TransactionType `json:"type"`
	Method               PaymentMethod   `json:"method"`
	HolderDocument       string          `json:"holderDocument"`
	CounterpartyDocument string          `json:"counterpartyDocument"`
	Counterparty         string          `json:"counterparty"`
	Bank                 string          `json:"bank,omitempty"`
	Agency               string          `json:"agency,omitempty"`
	Account              string          `json:"account,omitempty"`
	Description          string          `json:"description,omitempty"`
	EvidenceID           string          `json:"evidenceId"`
	Flags                []string        `json:"flags,omitempty"`
}

// Validate checks the canonical invariants of a transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if strings.TrimSpace(t.CaseID) == "" {
		return fmt.Errorf("transaction %s has no case", t.ID)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction %s has negative amount %s", t.ID, t.Amount.String())
	}
	if !t.Amount.Equal(t.Amount.Round(AmountScale)) {
		return fmt.Errorf("transaction %s amount %s exceeds %d fractional digits", t.ID, t.Amount.String(), AmountScale)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("invalid transaction type: %s", t.Type)
	}
	if !t.Method.IsValid() {
		return fmt.Errorf("invalid payment method: %s", t.Method)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction %s has no date", t.ID)
	}
	return nil
}

// IsCredit returns true if the transaction is a credit
func (t *Transaction) IsCredit() bool {
	return t.Type == TransactionTypeCredit
}

// IsDebit returns true if the transaction is a debit
func (t *Transaction) IsDebit() bool {
	return t.Type == TransactionTypeDebit
}

// IsDefaulted reports whether normalization substituted any field default.
func (t *Transaction) IsDefaulted() bool {
	return len(t.Flags) > 0
}

// HasFlag reports whether the given audit flag is set.
func (t *Transaction) HasFlag(flag string) bool {
	for _, f := range t.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Amount: %s, Type: %s, Method: %s, Date: %s}",
		t.ID, FormatAmount(t.Amount), t.Type, t.Method, t.Date.Format(time.RFC3339))
}

// MarshalJSON renders the amount at the canonical scale and the date in UTC.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		Alias
	}{
		Amount: FormatAmount(t.Amount),
		Date:   t.Date.UTC().Format(time.RFC3339Nano),
		Alias:  Alias(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}
	t.Amount = amount.Round(AmountScale)

	date, err := time.Parse(time.RFC3339Nano, aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}
	t.Date = date.UTC()

	return nil
}

// FormatAmount renders a decimal with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixedBank(AmountScale)
}

// SortKeyLess orders transactions by ascending date, ties broken by id.
func SortKeyLess(a, b *Transaction) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.ID < b.ID
}
