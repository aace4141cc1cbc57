package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAmount is returned for amounts that are not positive whole dust counts.
var ErrInvalidAmount = errors.New("invalid amount")

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// ParseDustAmount parses a positive integer amount of dust.
// Surrounding whitespace is ignored; signs, fractions and values above uint64 are rejected.
func ParseDustAmount(raw string) (uint64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: amount is empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: %q must be an unsigned integer", ErrInvalidAmount, raw)
	}

	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a whole number", ErrInvalidAmount, raw)
	}
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidAmount, raw)
	}
	if amount.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, raw)
	}
	return amount.Uint64(), nil
}

// FormatDust renders a dust count with the given number of decimals,
// trimming trailing zeros. Example: amount=1500000, decimals=6 => "1.5".
func FormatDust(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return new(big.Int).SetUint64(amount).String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(new(big.Int).SetUint64(amount), divisor, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := frac.String()
	if pad := int(decimals) - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	return whole.String() + "." + strings.TrimRight(fracStr, "0")
}
