package price

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FromReadableAmount converts a human amount such as "1.5" into raw token
// units for a token with the given decimals.
func FromReadableAmount(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}

	raw := value.Shift(int32(decimals))
	if !raw.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return raw.BigInt(), nil
}

// ToReadableAmount converts raw token units into a decimal string.
func ToReadableAmount(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}
