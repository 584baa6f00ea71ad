package price

import (
	"math/big"
	"testing"
)

func TestFromReadableAmount(t *testing.T) {
	cases := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{" 42 ", 0, "42"},
		{"0", 18, "0"},
	}
	for _, tc := range cases {
		got, err := FromReadableAmount(tc.amount, tc.decimals)
		if err != nil {
			t.Fatalf("FromReadableAmount(%q): %v", tc.amount, err)
		}
		if got.String() != tc.want {
			t.Fatalf("FromReadableAmount(%q, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestFromReadableAmountInvalid(t *testing.T) {
	for _, amount := range []string{"", "abc", "-1", "0.0000001"} {
		if _, err := FromReadableAmount(amount, 6); err == nil {
			t.Fatalf("expected error for %q", amount)
		}
	}
}

func TestToReadableAmount(t *testing.T) {
	if got := ToReadableAmount(big.NewInt(1500000), 6); got != "1.5" {
		t.Fatalf("got %s", got)
	}
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if got := ToReadableAmount(oneEther, 18); got != "1" {
		t.Fatalf("got %s", got)
	}
	if got := ToReadableAmount(nil, 18); got != "0" {
		t.Fatalf("got %s", got)
	}
}
