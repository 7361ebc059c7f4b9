package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := InitWith(nil, FormatText); err == nil {
		t.Error("expected error for nil writer")
	}
	if err := InitWith(&bytes.Buffer{}, Format("xml")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWith(&buf, FormatJSON); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	log := Named("review").Named("claims").With(String("queue_item_id", "q1"))
	log.Debug(context.Background(), "claimed",
		String("reviewer", "rev-1"),
		Duration("lease", 5*time.Minute),
		Error(errors.New("stale lease")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON entry, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "claimed" {
		t.Errorf("expected msg claimed, got %v", entry["msg"])
	}
	if entry["logger"] != "review.claims" {
		t.Errorf("expected nested logger name, got %v", entry["logger"])
	}
	if entry["queue_item_id"] != "q1" || entry["reviewer"] != "rev-1" {
		t.Errorf("expected bound and call fields, got %v", entry)
	}
	if entry["error"] != "stale lease" {
		t.Errorf("expected error text, got %v", entry["error"])
	}
	if src, _ := entry["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("expected caller source in logger_test.go, got %q", src)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWith(&buf, FormatText); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	ctx := context.Background()
	Get().Info(ctx, "hidden")
	Get().Warn(ctx, "shown", Int("n", 3))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info entry should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "n=3") {
		t.Errorf("expected warn entry, got %q", out)
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, " json ": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("logfmt"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNop(t *testing.T) {
	n := Nop().Named("x").With(Bool("k", true))
	n.Info(context.Background(), "ignored", Float64("f", 1.5), Any("a", []int{1}))
}
