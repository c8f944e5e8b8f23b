package ledger

import (
	"sync"
	"testing"
	"time"

	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"

	"github.com/shopspring/decimal"
)

var base = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func tx(id string, offset time.Duration, amount string) models.Transaction {
	return models.Transaction{
		ID:     id,
		CaseID: "CASE-1",
		Date:   base.Add(offset),
		Amount: decimal.RequireFromString(amount),
		Type:   models.TransactionTypeCredit,
		Method: models.MethodPIX,
	}
}

func TestLedger_MergeLastWriteWins(t *testing.T) {
	l := New("CASE-1")

	stats, err := l.Merge([]models.Transaction{tx("a", 0, "10.00"), tx("b", time.Hour, "20.00")})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if stats.Inserted != 2 || stats.Updated != 0 {
		t.Errorf("Merge() stats = %+v, want 2 inserted", stats)
	}

	stats, err = l.Merge([]models.Transaction{tx("b", time.Hour, "25.00"), tx("c", 2*time.Hour, "30.00")})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if stats.Inserted != 1 || stats.Updated != 1 {
		t.Errorf("Merge() stats = %+v, want 1 inserted 1 updated", stats)
	}

	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}
	got, ok := l.Get("b")
	if !ok || !got.Amount.Equal(decimal.RequireFromString("25.00")) {
		t.Errorf("Get(b) = %s, want overwritten amount 25.00", got.Amount)
	}
	if _, ok := l.Get("a"); !ok {
		t.Error("untouched transaction a must be preserved")
	}
	if l.Version() != 2 {
		t.Errorf("Version() = %d, want 2", l.Version())
	}
}

func TestLedger_MergeRejectsInvalidBatch(t *testing.T) {
	l := New("CASE-1")
	if _, err := l.Merge([]models.Transaction{tx("a", 0, "10.00")}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	tests := []struct {
		name string
		tx   models.Transaction
	}{
		{"other case", func() models.Transaction { x := tx("z", 0, "1.00"); x.CaseID = "CASE-2"; return x }()},
		{"negative amount", tx("z", 0, "-1.00")},
		{"bad method", func() models.Transaction { x := tx("z", 0, "1.00"); x.Method = "TED"; return x }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Merge([]models.Transaction{tx("b", 0, "5.00"), tt.tx})
			if !errors.IsCategory(err, errors.CategoryValidation) {
				t.Fatalf("Merge() error = %v, want validation error", err)
			}
			if l.Len() != 1 {
				t.Errorf("Len() = %d, want 1 after rejected batch", l.Len())
			}
		})
	}
}

func TestLedger_SnapshotOrder(t *testing.T) {
	l := New("CASE-1")
	_, err := l.Merge([]models.Transaction{
		tx("c", time.Hour, "1.00"),
		tx("b", 0, "1.00"),
		tx("a", 0, "1.00"),
		tx("d", -time.Hour, "1.00"),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := []string{"d", "a", "b", "c"}
	for run := 0; run < 3; run++ {
		snap := l.Snapshot()
		for i, id := range want {
			if snap[i].ID != id {
				t.Fatalf("Snapshot()[%d] = %s, want %s", i, snap[i].ID, id)
			}
		}
	}
}

func TestLedger_DocumentRoundTrip(t *testing.T) {
	l := New("CASE-1")
	if _, err := l.Merge([]models.Transaction{tx("a", 0, "10.00"), tx("b", time.Hour, "20.00")}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	restored, err := FromDocument(l.Document())
	if err != nil {
		t.Fatalf("FromDocument() error = %v", err)
	}
	if restored.Len() != 2 || restored.Version() != l.Version() || restored.CaseID() != "CASE-1" {
		t.Errorf("restored ledger len=%d version=%d case=%s", restored.Len(), restored.Version(), restored.CaseID())
	}
}

func TestLedger_ConcurrentReads(t *testing.T) {
	l := New("CASE-1")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if _, err := l.Merge([]models.Transaction{tx(id, time.Duration(i)*time.Minute, "1.00")}); err != nil {
				t.Errorf("Merge() error = %v", err)
			}
			_ = l.Snapshot()
		}(i)
	}
	wg.Wait()

	if l.Len() != 8 {
		t.Errorf("Len() = %d, want 8", l.Len())
	}
}
