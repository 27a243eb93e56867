package schedule

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a non-negative whole number of token base units.
func ParseAmount(raw string) (*big.Int, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("not a decimal amount: %q", raw)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %s is negative", raw)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("amount %s is not a whole number of base units", raw)
	}
	return d.BigInt(), nil
}
