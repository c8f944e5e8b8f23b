package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	return Transaction{
		ID:                   "TX001",
		CaseID:               "CASE-1",
		Date:                 time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Amount:               decimal.RequireFromString("1500.50"),
		Type:                 TransactionTypeCredit,
		Method:               MethodPIX,
		HolderDocument:       "12345678900",
		CounterpartyDocument: "98765432100",
		Counterparty:         "FULANO DE TAL",
		EvidenceID:           "extrato.csv",
	}
}

func TestTransactionType_IsValid(t *testing.T) {
	tests := []struct {
		txType TransactionType
		valid  bool
	}{
		{TransactionTypeCredit, true},
		{TransactionTypeDebit, true},
		{"CREDIT", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.txType), func(t *testing.T) {
			if got := tt.txType.IsValid(); got != tt.valid {
				t.Errorf("TransactionType.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestPaymentMethod_IsValid(t *testing.T) {
	for _, m := range PaymentMethods {
		if !m.IsValid() {
			t.Errorf("%s should be valid", m)
		}
	}
	if PaymentMethod("TED").IsValid() {
		t.Error("raw channel names must be normalized before use")
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Transaction)
		wantError bool
	}{
		{"valid transaction", func(*Transaction) {}, false},
		{"zero amount is allowed", func(tx *Transaction) { tx.Amount = decimal.Zero }, false},
		{"empty id", func(tx *Transaction) { tx.ID = "" }, true},
		{"empty case", func(tx *Transaction) { tx.CaseID = " " }, true},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.RequireFromString("-1.00") }, true},
		{"three decimals", func(tx *Transaction) { tx.Amount = decimal.RequireFromString("1.005") }, true},
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, true},
		{"bad method", func(tx *Transaction) { tx.Method = "TED" }, true},
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(&tx)
			err := tx.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Transaction.Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestTransaction_JSONKeepsScale(t *testing.T) {
	tx := validTransaction()
	tx.Amount = decimal.RequireFromString("1500")
	tx.Date = time.Date(2024, 1, 15, 7, 30, 0, 0, time.FixedZone("BRT", -3*3600))

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"amount":"1500.00"`) {
		t.Errorf("amount not rendered at two decimals: %s", data)
	}
	if !strings.Contains(string(data), `"date":"2024-01-15T10:30:00Z"`) {
		t.Errorf("date not rendered in UTC: %s", data)
	}

	var decoded Transaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if !decoded.Amount.Equal(tx.Amount) {
		t.Errorf("decoded amount = %s, want %s", decoded.Amount, tx.Amount)
	}
	if !decoded.Date.Equal(tx.Date) {
		t.Errorf("decoded date = %s, want %s", decoded.Date, tx.Date)
	}
	if decoded.Date.Location() != time.UTC {
		t.Errorf("decoded date location = %s, want UTC", decoded.Date.Location())
	}
}

func TestTransaction_JSONKeepsSubSecondDates(t *testing.T) {
	tx := validTransaction()
	tx.Date = time.Date(2024, 1, 15, 10, 0, 0, 300_000_000, time.UTC)

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"date":"2024-01-15T10:00:00.3Z"`) {
		t.Errorf("fractional seconds dropped: %s", data)
	}

	var decoded Transaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if !decoded.Date.Equal(tx.Date) {
		t.Errorf("decoded date = %s, want %s", decoded.Date, tx.Date)
	}
}

func TestTransaction_Flags(t *testing.T) {
	tx := validTransaction()
	if tx.IsDefaulted() {
		t.Error("fresh transaction should not be flagged")
	}
	tx.Flags = []string{FlagAmountDefaulted}
	if !tx.IsDefaulted() || !tx.HasFlag(FlagAmountDefaulted) {
		t.Error("expected amount_defaulted flag")
	}
	if tx.HasFlag(FlagDateDefaulted) {
		t.Error("unexpected date_defaulted flag")
	}
}

func TestSortKeyLess(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Transaction{ID: "b", Date: base}
	b := Transaction{ID: "a", Date: base}
	c := Transaction{ID: "0", Date: base.Add(time.Hour)}

	if !SortKeyLess(&b, &a) {
		t.Error("ties should break by id")
	}
	if !SortKeyLess(&a, &c) {
		t.Error("earlier date should sort first regardless of id")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1500", "1500.00"},
		{"1500.5", "1500.50"},
		{"0.125", "0.12"},
		{"0.135", "0.14"},
	}
	for _, tt := range tests {
		if got := FormatAmount(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatAmount(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRule_DetectorAndValidate(t *testing.T) {
	r := Rule{ID: RuleStructuring, Severity: SeverityHigh}
	if r.DetectorID() != RuleStructuring {
		t.Errorf("DetectorID() = %s, want %s", r.DetectorID(), RuleStructuring)
	}
	r.Detector = RuleCashIntensity
	if r.DetectorID() != RuleCashIntensity {
		t.Errorf("DetectorID() = %s, want %s", r.DetectorID(), RuleCashIntensity)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	r.Severity = "critical"
	if err := r.Validate(); err == nil {
		t.Error("expected invalid severity error")
	}
}

func TestRule_Clone(t *testing.T) {
	r := Rule{ID: "x", Parameters: map[string]interface{}{"threshold": 10}}
	c := r.Clone()
	c.Parameters["threshold"] = 20
	if r.Parameters["threshold"] != 10 {
		t.Error("Clone must not share the parameter map")
	}
}

func TestAlertID_Deterministic(t *testing.T) {
	a := AlertID("CASE-1", RuleStructuring, 0, []string{"t1", "t2"})
	b := AlertID("CASE-1", RuleStructuring, 0, []string{"t1", "t2"})
	c := AlertID("CASE-1", RuleStructuring, 1, []string{"t1", "t2"})
	if a != b {
		t.Errorf("AlertID not deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Error("different ordinals should yield different ids")
	}
}

func TestCountAlerts(t *testing.T) {
	alerts := []Alert{
		{RuleID: RuleStructuring, Severity: SeverityHigh},
		{RuleID: RuleStructuring, Severity: SeverityHigh},
		{RuleID: RuleFanInOut, Severity: SeverityMedium},
	}
	counts := CountAlerts(alerts)
	if counts.Total != 3 {
		t.Errorf("Total = %d, want 3", counts.Total)
	}
	if counts.ByRule[RuleStructuring] != 2 {
		t.Errorf("ByRule[%s] = %d, want 2", RuleStructuring, counts.ByRule[RuleStructuring])
	}
	if counts.BySeverity[SeverityMedium] != 1 {
		t.Errorf("BySeverity[medium] = %d, want 1", counts.BySeverity[SeverityMedium])
	}
	ids := counts.SortedRuleIDs()
	if len(ids) != 2 || ids[0] != RuleFanInOut {
		t.Errorf("SortedRuleIDs() = %v", ids)
	}
}
