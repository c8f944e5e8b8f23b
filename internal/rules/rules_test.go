package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"

	"github.com/spf13/afero"
)

func TestDefaults(t *testing.T) {
	rules := Defaults()
	want := map[string]models.Severity{
		models.RuleStructuring:   models.SeverityHigh,
		models.RuleCircularity:   models.SeverityHigh,
		models.RuleFanInOut:      models.SeverityMedium,
		models.RuleProfileDrift:  models.SeverityMedium,
		models.RuleCashIntensity: models.SeverityHigh,
	}
	if len(rules) != len(want) {
		t.Fatalf("len(Defaults()) = %d, want %d", len(rules), len(want))
	}
	for _, r := range rules {
		if !r.Enabled {
			t.Errorf("rule %s should be enabled by default", r.ID)
		}
		if r.Severity != want[r.ID] {
			t.Errorf("rule %s severity = %s, want %s", r.ID, r.Severity, want[r.ID])
		}
		if err := r.Validate(); err != nil {
			t.Errorf("rule %s Validate() error = %v", r.ID, err)
		}
	}

	rules[0].Parameters["threshold"] = "1"
	if again, _ := Find(Defaults(), models.RuleStructuring); again.Parameters["threshold"] != "10000" {
		t.Error("Defaults() must return fresh parameter maps")
	}
}

const sampleBook = `
version: 1
defaults:
  - id: fracionamento
    parameters:
      threshold: 5000
  - id: pix-noturno
    detector: fracionamento
    severity: low
    parameters:
      windowHours: 6
cases:
  CASE-42:
    - id: especie-intensa
      enabled: false
    - id: fracionamento
      severity: medium
`

func TestParseAndRulesFor(t *testing.T) {
	book, err := Parse([]byte(sampleBook))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	general := book.RulesFor("CASE-1")
	if len(general) != 6 {
		t.Fatalf("len(RulesFor(CASE-1)) = %d, want 6", len(general))
	}
	s, _ := Find(general, models.RuleStructuring)
	if s.Parameters["threshold"] != 5000 {
		t.Errorf("threshold = %v, want 5000", s.Parameters["threshold"])
	}
	if s.Parameters["windowHours"] != 24 {
		t.Errorf("windowHours = %v, want 24 kept from defaults", s.Parameters["windowHours"])
	}
	custom, ok := Find(general, "pix-noturno")
	if !ok || custom.DetectorID() != models.RuleStructuring || custom.Severity != models.SeverityLow || !custom.Enabled {
		t.Errorf("custom rule = %+v", custom)
	}

	scoped := book.RulesFor("CASE-42")
	cash, _ := Find(scoped, models.RuleCashIntensity)
	if cash.Enabled {
		t.Error("especie-intensa should be disabled for CASE-42")
	}
	s, _ = Find(scoped, models.RuleStructuring)
	if s.Severity != models.SeverityMedium || s.Parameters["threshold"] != 5000 {
		t.Errorf("CASE-42 fracionamento = %+v", s)
	}

	if cash, _ := Find(book.RulesFor("CASE-1"), models.RuleCashIntensity); !cash.Enabled {
		t.Error("case overrides must not leak into other cases")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "defaults: [\n"},
		{"unknown key", "version: 1\nrulez: []\n"},
		{"bad version", "version: 7\n"},
		{"missing id", "defaults:\n  - severity: high\n"},
		{"bad severity", "defaults:\n  - id: x\n    severity: critical\n"},
		{"duplicate", "defaults:\n  - id: x\n  - id: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !errors.IsCategory(err, errors.CategoryConfiguration) {
				t.Errorf("error category = %v, want configuration", err)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	book, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if got := len(book.RulesFor("any")); got != 5 {
		t.Errorf("len(RulesFor) = %d, want 5", got)
	}
}

func TestNilBook(t *testing.T) {
	var b *Book
	if got := len(b.RulesFor("x")); got != 5 {
		t.Errorf("len(RulesFor) = %d, want 5", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Marshal(Defaults())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	book, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal()) error = %v\n%s", err, data)
	}
	got := book.RulesFor("x")
	for _, want := range Defaults() {
		r, ok := Find(got, want.ID)
		if !ok {
			t.Fatalf("rule %s missing after round trip", want.ID)
		}
		if r.Severity != want.Severity || r.Enabled != want.Enabled || len(r.Parameters) != len(want.Parameters) {
			t.Errorf("rule %s = %+v, want %+v", want.ID, r, want)
		}
	}
}

func TestLoader_Reload(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/etc/redflag/rules.yaml"
	if err := afero.WriteFile(fs, path, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := NewLoader(fs, path)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	var notified int
	l.OnChange(func(*Book) { notified++ })

	afero.WriteFile(fs, path, []byte("defaults:\n  - id: fan-in-out\n    enabled: false\n"), 0o644)
	if _, err := l.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if r, _ := Find(l.RulesFor("c"), models.RuleFanInOut); r.Enabled {
		t.Error("fan-in-out should be disabled after reload")
	}
	if notified != 1 {
		t.Errorf("OnChange calls = %d, want 1", notified)
	}

	afero.WriteFile(fs, path, []byte("defaults: [\n"), 0o644)
	if _, err := l.Reload(); err == nil {
		t.Fatal("Reload() of broken book should fail")
	}
	if r, _ := Find(l.RulesFor("c"), models.RuleFanInOut); r.Enabled {
		t.Error("failed reload must keep the previous book")
	}
	if notified != 1 {
		t.Errorf("OnChange calls = %d, want 1", notified)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(afero.NewMemMapFs(), "/nope.yaml")
	if !errors.IsCode(err, errors.CodeMissingConfig) {
		t.Errorf("NewLoader() error = %v, want missing_config", err)
	}
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := NewLoader(afero.NewOsFs(), path)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	changed := make(chan *Book, 4)
	l.OnChange(func(b *Book) { changed <- b })

	stop, err := l.Watch()
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("defaults:\n  - id: circularidade\n    enabled: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case b := <-changed:
			if r, _ := Find(b.RulesFor("c"), models.RuleCircularity); !r.Enabled {
				return
			}
		case <-deadline:
			t.Fatal("rule book change not observed")
		}
	}
}
