package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeePolicy computes the fee charged for a trade from its notional value
// (price times quantity). The rate is deployment configuration, not engine
// logic; the engine only adds the fee to a buy's cost or deducts it from a
// sell's proceeds.
type FeePolicy interface {
	Fee(notional decimal.Decimal) decimal.Decimal
}

// PercentFeePolicy charges a fixed percentage of the notional.
type PercentFeePolicy struct {
	rate decimal.Decimal
}

// NewPercentFeePolicy creates a percentage fee policy. The rate is a fraction
// (0.001 means 0.1%) and must be in [0, 1).
func NewPercentFeePolicy(rate decimal.Decimal) (*PercentFeePolicy, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate %s must be in [0, 1)", rate)
	}
	return &PercentFeePolicy{rate: rate}, nil
}

// Fee returns rate * notional.
func (p *PercentFeePolicy) Fee(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(p.rate)
}
