package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestWithComponent_AddsField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf).WithComponent("poller")
	log.Info().Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "poller" {
		t.Errorf("component = %v, want %q", entry["component"], "poller")
	}
	if entry["message"] != "hello" {
		t.Errorf("message = %v, want %q", entry["message"], "hello")
	}
}

func TestCronLogger_ErrorIncludesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	cl := NewWithWriter(&buf).Cron()
	cl.Error(errors.New("boom"), "job failed", "entry", 3)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want %q", entry["error"], "boom")
	}
	if entry["entry"] != float64(3) {
		t.Errorf("entry = %v, want 3", entry["entry"])
	}
	if entry["level"] != "error" {
		t.Errorf("level = %v, want error", entry["level"])
	}
}
