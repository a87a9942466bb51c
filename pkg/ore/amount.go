package ore

import (
	"fmt"
	"math"
)

// unitsPerToken is 10^TokenDecimals
const unitsPerToken = 1_000_000_000

// ToUnits converts a token amount to base units, rounding to the nearest unit
func ToUnits(amount float64) (uint64, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("invalid amount %v", amount)
	}
	units := math.Round(amount * unitsPerToken)
	if units >= math.MaxUint64 {
		return 0, fmt.Errorf("amount %v overflows", amount)
	}
	return uint64(units), nil
}

// FormatAmount renders base units as a decimal token amount
func FormatAmount(units uint64) string {
	return fmt.Sprintf("%d.%09d", units/unitsPerToken, units%unitsPerToken)
}
