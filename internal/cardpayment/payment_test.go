package cardpayment

import (
	"math"
	"strings"
	"testing"
)

func TestCashbackOf(t *testing.T) {
	tests := []struct {
		name string
		net  uint64
		rate uint64
		want uint64
	}{
		{"zero net", 0, 100, 0},
		{"zero rate", 234, 0, 0},
		{"ten percent floors", 234, 100, 23},
		{"exact division", 1000, 100, 100},
		{"full rate is identity", 234, 1000, 234},
		{"sub-unit floors to zero", 9, 100, 0},
		{"large net no overflow", math.MaxUint64, 1000, math.MaxUint64},
		{"large net half rate", math.MaxUint64 - 615, 500, (math.MaxUint64 - 615) / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CashbackOf(tt.net, tt.rate); got != tt.want {
				t.Errorf("CashbackOf(%d, %d) = %d, want %d", tt.net, tt.rate, got, tt.want)
			}
		})
	}
}

func TestParseAuthID(t *testing.T) {
	id := authID(0xab)
	parsed, err := ParseAuthID(id.String())
	if err != nil {
		t.Fatalf("ParseAuthID failed: %v", err)
	}
	if parsed != id {
		t.Errorf("Expected round trip, got %s", parsed)
	}

	for _, bad := range []string{"", "ab", strings.Repeat("a", 31), strings.Repeat("a", 34), strings.Repeat("z", 32)} {
		if _, err := ParseAuthID(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestStatus(t *testing.T) {
	if !StatusUncleared.Active() || !StatusCleared.Active() {
		t.Error("Expected uncleared and cleared to be active")
	}
	if StatusNonexistent.Active() || StatusRevoked.Active() {
		t.Error("Expected nonexistent and revoked to be inactive")
	}
	for _, s := range []Status{StatusRevoked, StatusReversed, StatusConfirmed} {
		if !s.Terminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
	if StatusUncleared.Terminal() || StatusNonexistent.Terminal() {
		t.Error("Expected uncleared and nonexistent to be non-terminal")
	}
	if Status(42).String() != "unknown" {
		t.Errorf("Expected unknown, got %s", Status(42))
	}
}
