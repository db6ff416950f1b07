package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's virtual cash balance.
// CashBalance is mutated only by the trade engine through the ledger store and
// is never negative at any observable time.
type Account struct {
	UserID      int64           // Unique, immutable identity key (supplied pre-verified)
	CashBalance decimal.Decimal // Available virtual cash
	Version     int64           // Optimistic concurrency stamp, bumped on every committed mutation
	CreatedAt   time.Time       // Timestamp the account was first seen
	UpdatedAt   time.Time       // Timestamp of the last committed mutation
}
