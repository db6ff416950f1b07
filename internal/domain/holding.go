package domain

import "github.com/shopspring/decimal"

// Holding is a user's current position in one symbol: quantity held and the
// quantity-weighted average price paid for the currently held units.
// A holding whose quantity reaches zero is deleted from the ledger; a later
// buy recreates it with the average cost seeded from that buy's price.
type Holding struct {
	UserID      int64           // Owning account
	Symbol      string          // Trading symbol (e.g., "BTCUSDT")
	Quantity    decimal.Decimal // Units held, never negative
	AverageCost decimal.Decimal // Weighted average purchase price; unchanged by sells
}

// MarketValue returns the holding's value at the given price.
func (h *Holding) MarketValue(price decimal.Decimal) decimal.Decimal {
	return h.Quantity.Mul(price)
}

// UnrealizedPnL returns the paper gain or loss at the given price.
func (h *Holding) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(h.AverageCost).Mul(h.Quantity)
}
