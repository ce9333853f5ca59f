package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

var taxRate = decimal.NewFromFloat(0.18)

func TestRoundHalfUpPercent(t *testing.T) {
	tests := []struct {
		amount int64
		want   int64
	}{
		{amount: 1200, want: 216},
		{amount: 500, want: 90},
		{amount: 3, want: 1},   // 0.54 rounds up
		{amount: 1, want: 0},   // 0.18 rounds down
		{amount: 25, want: 5},  // 4.5 rounds half up
		{amount: 0, want: 0},
	}
	for _, tt := range tests {
		if got := RoundHalfUpPercent(tt.amount, taxRate); got != tt.want {
			t.Fatalf("RoundHalfUpPercent(%d) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}

func TestMajorStringRoundTrip(t *testing.T) {
	if got := ToMajorString(1416); got != "14.16" {
		t.Fatalf("ToMajorString(1416) = %q", got)
	}
	cents, err := FromMajorString("14.16")
	if err != nil {
		t.Fatalf("FromMajorString: %v", err)
	}
	if cents != 1416 {
		t.Fatalf("FromMajorString(14.16) = %d", cents)
	}
}
