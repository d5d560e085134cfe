package wallet

import (
	"math/big"
	"strings"
)

// FormatUnits converts a wei amount to a decimal string without float
// precision loss. Trailing zeros in the fractional part are trimmed, so the
// result is canonical: two balances compare equal iff their strings do.
// Example: FormatUnits(1500000000000000000, 18) = "1.5".
func FormatUnits(wei *big.Int, decimals int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}

	s := wei.String()
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	// Pad with leading zeros so the decimal point has a digit to its left.
	for len(s) <= decimals {
		s = "0" + s
	}

	pos := len(s) - decimals
	whole, frac := s[:pos], s[pos:]
	frac = strings.TrimRight(frac, "0")

	out := whole
	if frac != "" {
		out = whole + "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// DonorUnitsToWei converts an amount in donor currency units to wei of the
// native token at the given rate (donor units per whole native token).
func DonorUnitsToWei(amount int64, decimals int, unitsPerToken int64) *big.Int {
	wei := new(big.Int).SetInt64(amount)
	wei.Mul(wei, pow10(decimals))
	return wei.Div(wei, big.NewInt(unitsPerToken))
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
