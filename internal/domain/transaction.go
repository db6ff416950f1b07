package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable record of one executed trade. Transactions are
// the ground truth of the ledger: holdings and balances are derived aggregate
// state, the transaction log is never mutated or deleted.
type Transaction struct {
	ID           int64           // Monotonic identifier assigned by the log
	Reference    string          // Client-facing UUID assigned by the engine
	UserID       int64           // Owning account
	Symbol       string          // Trading symbol
	Side         Side            // BUY or SELL
	Quantity     decimal.Decimal // Units traded, always positive
	PricePerUnit decimal.Decimal // Executed price, always positive
	Fee          decimal.Decimal // Fee charged, never negative
	TotalAmount  decimal.Decimal // PricePerUnit * Quantity (fee reported separately)
	CreatedAt    time.Time       // Execution timestamp
}

// TradeMutation is the full, single-account state change computed by the trade
// engine for one trade: the new cash balance, the resulting holding state and
// the transaction to append. The ledger store commits all of it atomically,
// conditioned on AccountVersion still being current.
type TradeMutation struct {
	UserID         int64
	AccountVersion int64           // Version the computation was based on
	NewCashBalance decimal.Decimal // Cash after the trade
	Holding        *Holding        // Resulting holding; zero quantity means the position is closed out
	Transaction    *Transaction    // Record to append in the same commit
}
