package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a trade (BUY or SELL).
// It is a closed two-variant type; the engine matches it exhaustively so an
// unknown side can never reach ledger math.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// IsValid reports whether the side is one of the two known variants.
func (s Side) IsValid() bool {
	return s == Buy || s == Sell
}

// Quote is a price for one symbol at a point in time, as reported by the
// price oracle. Quotes from separate calls are not assumed synchronized.
type Quote struct {
	Symbol    string          // Trading symbol (e.g., "BTCUSDT")
	Price     decimal.Decimal // Last traded price, always > 0 for a usable quote
	Change24h decimal.Decimal // 24h price change in percent (informational)
	AsOf      time.Time       // Timestamp the price refers to
}
