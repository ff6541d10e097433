package jslog

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNopDiscardsWithoutPanicking(t *testing.T) {
	l := Nop()
	l.Info().Str("k", "v").Log("should not be observable")
	l.Err().Error(nil).Log("still should not panic")
}

func TestNewEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info")
	l.Warn().Str("phase", "drain_microtasks").Int("n", 3).Log("execution time limit exceeded")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
	}
	if record["phase"] != "drain_microtasks" {
		t.Errorf("phase field = %v, want drain_microtasks", record["phase"])
	}
	if record["message"] != "execution time limit exceeded" {
		t.Errorf("message field = %v, want execution time limit exceeded", record["message"])
	}
}

func TestDebugLevelSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info")
	l.Debug().Str("k", "v").Log("should be filtered out")
	if buf.Len() != 0 {
		t.Errorf("debug record should be suppressed at info level, got %q", buf.String())
	}
}
