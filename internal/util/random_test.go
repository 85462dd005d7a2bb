package util

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		got        string
		wantPrefix string
		wantLength int
	}{
		{"contact request ID", GenerateContactRequestID(), "cr_", 35},
		{"job ID", GenerateJobID(), "job_", 36},
		{"outbox ID", GenerateOutboxID(), "outbox_", 39},
		{"custom prefix", GenerateRandomID("test_", 16), "test_", 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.got, tt.wantPrefix) {
				t.Errorf("ID %q missing prefix %q", tt.got, tt.wantPrefix)
			}
			if len(tt.got) != tt.wantLength {
				t.Errorf("ID length = %d, want %d", len(tt.got), tt.wantLength)
			}
			if !isValidHex(tt.got[len(tt.wantPrefix):]) {
				t.Errorf("ID %q has non-hex suffix", tt.got)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	if GenerateRandomHex(0) != "" || GenerateRandomHex(-3) != "" {
		t.Error("expected empty string for non-positive length")
	}
	if got := GenerateRandomHex(64); len(got) != 64 || !isValidHex(got) {
		t.Errorf("unexpected hex string %q", got)
	}
}

func TestRandomIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateContactRequestID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestParseEnvHelpers(t *testing.T) {
	t.Setenv("BK_BOOL", "yes")
	t.Setenv("BK_BAD_BOOL", "maybe")
	t.Setenv("BK_INT", "7")
	t.Setenv("BK_BAD_INT", "seven")
	t.Setenv("BK_DUR", "72h")
	t.Setenv("BK_BAD_DUR", "soon")

	if !ParseBoolEnv("BK_BOOL", false) {
		t.Error("expected true")
	}
	if ParseBoolEnv("BK_BAD_BOOL", false) {
		t.Error("expected default for invalid bool")
	}
	if ParseIntEnv("BK_INT", 1) != 7 || ParseIntEnv("BK_BAD_INT", 1) != 1 || ParseIntEnv("BK_UNSET_INT", 3) != 3 {
		t.Error("unexpected ParseIntEnv results")
	}
	if ParseDurationEnv("BK_DUR", 0) != 72*time.Hour || ParseDurationEnv("BK_BAD_DUR", time.Second) != time.Second {
		t.Error("unexpected ParseDurationEnv results")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" log, email,,sms ,")
	want := []string{"log", "email", "sms"}
	if len(got) != len(want) {
		t.Fatalf("SplitList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SplitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if SplitList("") != nil {
		t.Error("expected nil for empty input")
	}
}

func isValidHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
