package sender

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestLogSender_AlwaysSucceeds(t *testing.T) {
	s := NewLogSender(zap.NewNop(), 0)

	id, err := s.Send(context.Background(), "+919800000001", "renewal reminder body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Error("expected a synthetic message id")
	}
	if !strings.HasPrefix(id, "mock-") {
		t.Errorf("unexpected id format: %s", id)
	}
}

func TestLogSender_UniqueIDs(t *testing.T) {
	s := NewLogSender(zap.NewNop(), 0)

	first, _ := s.Send(context.Background(), "+919800000001", "a")
	second, _ := s.Send(context.Background(), "+919800000001", "b")
	if first == second {
		t.Error("message ids should be unique per send")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		maxLen  int
		wantLen int
	}{
		{"short_untouched", "hello", 10, 5},
		{"exact_untouched", "hello", 5, 5},
		{"long_truncated", strings.Repeat("x", 600), 480, 480},
		{"zero_uses_default", strings.Repeat("x", 600), 0, DefaultMaxBodyLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.body, tt.maxLen)
			if len([]rune(got)) != tt.wantLen {
				t.Errorf("len = %d, want %d", len([]rune(got)), tt.wantLen)
			}
		})
	}
}

func TestTruncate_MultibyteSafe(t *testing.T) {
	// Rupee sign and other multibyte runes must not be split.
	body := strings.Repeat("₹", 10)
	got := Truncate(body, 5)
	if got != strings.Repeat("₹", 5) {
		t.Errorf("unexpected truncation: %q", got)
	}
}
