package price

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultDigits is the number of significant digits used when none is configured.
const DefaultDigits = 6

// FormatSignificant renders r rounded half-up to the given number of
// significant digits, without exponent notation or trailing zeros.
func FormatSignificant(r *big.Rat, digits int) string {
	if r == nil || r.Sign() == 0 {
		return "0"
	}
	if digits < 1 {
		digits = 1
	}

	num := new(big.Int).Abs(r.Num())
	den := new(big.Int).Set(r.Denom())

	places := digits - 1 - magnitude(num, den)
	if places >= 0 {
		num.Mul(num, pow10(places))
	} else {
		den.Mul(den, pow10(-places))
	}

	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Lsh(rem, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}

	out := decimal.NewFromBigInt(q, int32(-places))
	if r.Sign() < 0 {
		out = out.Neg()
	}
	return out.String()
}

// magnitude returns floor(log10(n/d)) for positive n and d.
func magnitude(n, d *big.Int) int {
	e := len(n.String()) - len(d.String())
	if e >= 0 {
		if n.Cmp(new(big.Int).Mul(d, pow10(e))) < 0 {
			e--
		}
	} else if new(big.Int).Mul(n, pow10(-e)).Cmp(d) < 0 {
		e--
	}
	return e
}
