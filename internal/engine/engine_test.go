package engine

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"golang-redflag-service/internal/detectors"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/internal/rules"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func tx(id, holder string, offset time.Duration, amount string, method models.PaymentMethod) models.Transaction {
	return models.Transaction{
		ID:             id,
		CaseID:         "CASE-1",
		Date:           t0.Add(offset),
		Amount:         decimal.RequireFromString(amount),
		Type:           models.TransactionTypeCredit,
		Method:         method,
		HolderDocument: holder,
	}
}

func fixture() []models.Transaction {
	return []models.Transaction{
		tx("s1", "100", 0, "9500.00", models.MethodPIX),
		tx("s2", "100", time.Hour, "9800.00", models.MethodPIX),
		tx("s3", "100", 2*time.Hour, "9700.00", models.MethodPIX),
		tx("c1", "200", 0, "30000.00", models.MethodCash),
		tx("c2", "200", time.Hour, "25000.00", models.MethodCash),
		tx("p1", "200", 2*time.Hour, "5000.00", models.MethodPIX),
	}
}

func alertsFor(res *Result, ruleID string) []models.Alert {
	var out []models.Alert
	for _, a := range res.Alerts {
		if a.RuleID == ruleID {
			out = append(out, a)
		}
	}
	return out
}

func TestRun_Defaults(t *testing.T) {
	e := New(nil, logger.Nop())
	res := e.Run("CASE-1", fixture(), rules.Defaults())

	if res.Err != nil {
		t.Fatalf("Run() Err = %v", res.Err)
	}
	if len(res.Succeeded) != 5 {
		t.Errorf("Succeeded = %v, want all five rules", res.Succeeded)
	}

	structuring := alertsFor(res, models.RuleStructuring)
	if len(structuring) != 1 {
		t.Fatalf("fracionamento alerts = %d, want 1", len(structuring))
	}
	a := structuring[0]
	if a.Severity != models.SeverityHigh {
		t.Errorf("Severity = %s, want high", a.Severity)
	}
	if !reflect.DeepEqual(a.TransactionIDs, []string{"s1", "s2", "s3"}) {
		t.Errorf("TransactionIDs = %v", a.TransactionIDs)
	}
	if a.EvidenceCount != 3 || a.CaseID != "CASE-1" || a.Type != models.RuleStructuring {
		t.Errorf("alert = %+v", a)
	}
	if a.Parameters["minTransactions"] != 3 {
		t.Errorf("Parameters[minTransactions] = %v, want 3", a.Parameters["minTransactions"])
	}

	if got := len(alertsFor(res, models.RuleCashIntensity)); got != 1 {
		t.Errorf("especie-intensa alerts = %d, want 1", got)
	}
}

func TestRun_DetectorIsolation(t *testing.T) {
	rs := rules.Defaults()
	for i := range rs {
		if rs[i].ID == models.RuleCircularity {
			rs[i].Parameters["windowHours"] = "abc"
		}
	}

	res := New(nil, logger.Nop()).Run("CASE-1", fixture(), rs)

	if !reflect.DeepEqual(res.FailedIDs(), []string{models.RuleCircularity}) {
		t.Fatalf("FailedIDs() = %v, want [circularidade]", res.FailedIDs())
	}
	if !errors.IsCode(res.Failed[0].Err, errors.CodeInvalidParameters) {
		t.Errorf("failure = %v, want invalid_parameters", res.Failed[0].Err)
	}
	if res.Failed[0].Reason == "" {
		t.Error("failure reason should be recorded")
	}
	if len(res.Succeeded) != 4 {
		t.Errorf("Succeeded = %v, want four rules", res.Succeeded)
	}
	if !res.Partial() {
		t.Error("Partial() = false, want true")
	}
	if len(alertsFor(res, models.RuleStructuring)) == 0 || len(alertsFor(res, models.RuleCashIntensity)) == 0 {
		t.Error("sibling rules must still produce alerts")
	}
	if res.Err == nil || len(multierr.Errors(res.Err)) != 1 {
		t.Errorf("Err = %v, want one combined failure", res.Err)
	}
}

type panicDetector struct{}

func (panicDetector) ID() string { return "boom" }

func (panicDetector) Detect([]models.Transaction, map[string]interface{}) (*detectors.Output, error) {
	var m map[string]int
	m["x"]++
	return nil, nil
}

func TestRun_PanicAndUnknownDetector(t *testing.T) {
	registry := detectors.Builtin()
	registry["boom"] = panicDetector{}

	rs := append(rules.Defaults(),
		models.Rule{ID: "boom", Enabled: true, Severity: models.SeverityLow},
		models.Rule{ID: "ghost", Detector: "nope", Enabled: true, Severity: models.SeverityLow},
	)

	res := New(registry, logger.Nop()).Run("CASE-1", fixture(), rs)

	if !reflect.DeepEqual(res.FailedIDs(), []string{"boom", "ghost"}) {
		t.Fatalf("FailedIDs() = %v, want [boom ghost]", res.FailedIDs())
	}
	if !errors.IsCode(res.Failed[0].Err, errors.CodeDetectorPanic) {
		t.Errorf("boom failure = %v, want detector_panic", res.Failed[0].Err)
	}
	if !errors.IsCode(res.Failed[1].Err, errors.CodeUnknownDetector) {
		t.Errorf("ghost failure = %v, want unknown_detector", res.Failed[1].Err)
	}
	if rfErr, ok := errors.AsRedflagError(res.Failed[1].Err); !ok || !strings.Contains(rfErr.Suggestion, "boom, circularidade") {
		t.Errorf("ghost failure should list the registered detectors, got %v", res.Failed[1].Err)
	}
	if len(res.Succeeded) != 5 {
		t.Errorf("Succeeded = %v, want the five built-ins", res.Succeeded)
	}
}

func TestRun_SkippedAndInvalidRules(t *testing.T) {
	rs := rules.Defaults()
	rs[1].Enabled = false
	rs = append(rs,
		models.Rule{ID: models.RuleStructuring, Enabled: true, Severity: models.SeverityHigh},
		models.Rule{ID: "no-severity", Detector: models.RuleFanInOut, Enabled: true},
	)

	res := New(nil, logger.Nop()).Run("CASE-1", fixture(), rs)

	if !reflect.DeepEqual(res.Skipped, []string{rs[1].ID}) {
		t.Errorf("Skipped = %v, want [%s]", res.Skipped, rs[1].ID)
	}
	if !reflect.DeepEqual(res.FailedIDs(), []string{models.RuleStructuring, "no-severity"}) {
		t.Errorf("FailedIDs() = %v", res.FailedIDs())
	}
	if len(alertsFor(res, models.RuleStructuring)) != 1 {
		t.Error("the first fracionamento rule should still run")
	}
	if _, ok := res.Durations[rs[1].ID]; ok {
		t.Error("skipped rules should not report a duration")
	}
}

func TestRun_Deterministic(t *testing.T) {
	e := New(nil, logger.Nop())
	txs := fixture()
	first := e.Run("CASE-1", txs, rules.Defaults())

	reversed := make([]models.Transaction, len(txs))
	for i := range txs {
		reversed[len(txs)-1-i] = txs[i]
	}
	for i := 0; i < 5; i++ {
		again := e.Run("CASE-1", reversed, rules.Defaults())
		if !reflect.DeepEqual(first.Alerts, again.Alerts) {
			t.Fatalf("run %d produced different alerts:\n%+v\n%+v", i, first.Alerts, again.Alerts)
		}
	}

	if txs[0].ID != "s1" {
		t.Error("Run must not reorder its input")
	}
}

func TestRun_CustomRuleReusesDetector(t *testing.T) {
	rs := []models.Rule{{
		ID:         "pix-rapido",
		Detector:   models.RuleStructuring,
		Enabled:    true,
		Severity:   models.SeverityLow,
		Parameters: map[string]interface{}{"windowHours": 1},
	}}
	res := New(nil, logger.Nop()).Run("CASE-1", fixture(), rs)
	if len(res.Alerts) != 0 {
		t.Errorf("alerts = %d, want 0 with a one hour window", len(res.Alerts))
	}

	rs[0].Parameters["windowHours"] = 2
	res = New(nil, logger.Nop()).Run("CASE-1", fixture(), rs)
	if len(res.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(res.Alerts))
	}
	if res.Alerts[0].RuleID != "pix-rapido" || res.Alerts[0].Type != models.RuleStructuring || res.Alerts[0].Severity != models.SeverityLow {
		t.Errorf("alert = %+v", res.Alerts[0])
	}
}

func TestRun_Empty(t *testing.T) {
	res := New(nil, logger.Nop()).Run("CASE-1", nil, rules.Defaults())
	if res.Err != nil || len(res.Alerts) != 0 || len(res.Succeeded) != 5 {
		t.Errorf("Run(empty) = %+v", res)
	}
}
