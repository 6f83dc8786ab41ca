package gateway

import (
	"testing"
	"time"
)

func TestParseFloat(t *testing.T) {
	cases := []struct {
		name     string
		value    any
		expected float64
	}{
		{"float", 1.5, 1.5},
		{"int", 3, 3},
		{"numeric string", "25000.5", 25000.5},
		{"padded string", " 42 ", 42},
		{"garbage string", "abc", 0},
		{"nil", nil, 0},
		{"bool", true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseFloat(tc.value); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	if got := ParseInt("1500"); got != 1500 {
		t.Fatalf("expected 1500, got %v", got)
	}
	if got := ParseInt(float64(1700000000000)); got != 1700000000000 {
		t.Fatalf("expected 1700000000000, got %v", got)
	}
	if got := ParseInt("nope"); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestParsePercentage(t *testing.T) {
	if got := ParsePercentage("25"); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
	if got := ParsePercentage("25%"); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
	if got := ParsePercentage(0.05); got != 0.05 {
		t.Fatalf("expected 0.05 passthrough, got %v", got)
	}
	if got := ParsePercentage(5.0); got != 0.05 {
		t.Fatalf("expected 0.05, got %v", got)
	}
}

func TestParseTimestampMS(t *testing.T) {
	got := ParseTimestampMS("1700000000000")
	expected := time.UnixMilli(1700000000000).UTC()
	if !got.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}

	if !ParseTimestampMS(nil).IsZero() {
		t.Fatal("expected zero time for nil")
	}
}

func TestHasAPIError(t *testing.T) {
	hasError, message, code := HasAPIError(map[string]any{"code": float64(-1121), "msg": "Invalid symbol."})
	if !hasError || code != -1121 || message != "Invalid symbol." {
		t.Fatalf("expected error payload detection, got %v %q %d", hasError, message, code)
	}

	if hasError, _, _ := HasAPIError(map[string]any{"code": float64(200)}); hasError {
		t.Fatal("non-negative code is not an error")
	}

	if hasError, _, _ := HasAPIError([]any{1, 2}); hasError {
		t.Fatal("non-object payloads carry no error")
	}
}

func TestRoundToStep(t *testing.T) {
	if got := RoundToStep(0.30000000000000004, 0.001); got != 0.3 {
		t.Fatalf("expected 0.3, got %v", got)
	}
	if got := RoundToStep(1.2345, 0.01); got != 1.23 {
		t.Fatalf("expected 1.23, got %v", got)
	}
	if got := RoundToStep(5, 0); got != 5 {
		t.Fatalf("zero step must pass through, got %v", got)
	}
}

func TestRoundToPrecision(t *testing.T) {
	if got := RoundToPrecision(1.23456, 2); got != 1.23 {
		t.Fatalf("expected 1.23, got %v", got)
	}
	if got := RoundToPrecision(1.23456, -1); got != 1.23456 {
		t.Fatalf("negative precision must pass through, got %v", got)
	}
}

func TestMapOrderStatus(t *testing.T) {
	cases := map[string]string{
		"NEW":              "OPENING",
		"PARTIALLY_FILLED": "OPENING",
		"FILLED":           "OPEN",
		"CANCELED":         "CANCELLED",
		"PENDING_CANCEL":   "CANCELLED",
		"REJECTED":         "CANCELLED",
		"EXPIRED":          "CANCELLED",
		"SOMETHING_NEW":    "OPENING",
	}

	for input, expected := range cases {
		if got := MapOrderStatus(input); string(got) != expected {
			t.Fatalf("MapOrderStatus(%q): expected %s, got %s", input, expected, got)
		}
	}
}
