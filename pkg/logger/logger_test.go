package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: JSONFormat, Output: FileOutput}, true},
		{"writer overrides output", Config{Level: InfoLevel, Format: JSONFormat, Output: "nowhere", Writer: &bytes.Buffer{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_FieldsAreCarried(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&Config{Level: DebugLevel, Format: JSONFormat, Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	log.WithComponent("engine").
		WithFields(Fields{"case_id": "CASE-1"}).
		WithError(errors.New("boom")).
		Warn("rule failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}

	want := map[string]string{
		"component": "engine",
		"case_id":   "CASE-1",
		"error":     "boom",
		"level":     "warning",
		"msg":       "rule failed",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("entry[%q] = %v, want %v", key, entry[key], value)
		}
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&Config{Level: WarnLevel, Format: TextFormat, Writer: &buf, DisableTimestamp: true})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	log.Info("hidden")
	log.Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("error message missing from output: %s", out)
	}
}

func TestGlobalLogger(t *testing.T) {
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	nop := Nop()
	SetGlobalLogger(nop)
	if GetGlobalLogger() != nop {
		t.Error("SetGlobalLogger did not replace the global logger")
	}
}
