package relay

import (
	"github.com/shopspring/decimal"
)

// parseBaseUnits converts a human-unit decimal string into integer base
// units by scaling with 10^decimals and truncating toward zero. "1.50"
// with 6 decimals is exactly 1500000; fractional dust below one base unit
// is dropped, never rounded up.
func parseBaseUnits(amount string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, validationErr("amount", "not a numeric string: %q", amount)
	}
	if d.IsNegative() {
		return 0, validationErr("amount", "must be non-negative, got %q", amount)
	}

	scaled := d.Shift(int32(decimals)).Truncate(0)
	value := scaled.BigInt()
	if !value.IsUint64() {
		return 0, validationErr("amount", "overflows base units: %q", amount)
	}
	return value.Uint64(), nil
}
