package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"cryptoPaperTrader/internal/domain"
)

// LedgerStore is the durable, per-user mapping of cash balance and holdings.
// It owns all mutation: balances and holdings change only through ApplyTrade.
type LedgerStore interface {
	// CreateAccount creates an account with the given opening balance.
	// Fails if the account already exists.
	CreateAccount(ctx context.Context, userID int64, openingBalance decimal.Decimal) (*domain.Account, error)
	// GetAccount retrieves an account by user ID.
	// Returns nil, nil if the account does not exist.
	GetAccount(ctx context.Context, userID int64) (*domain.Account, error)
	// GetHolding retrieves the holding for (userID, symbol).
	// Returns nil, nil if the user holds none of the symbol.
	GetHolding(ctx context.Context, userID int64, symbol string) (*domain.Holding, error)
	// ListHoldings retrieves all of a user's holdings, ordered by symbol.
	ListHoldings(ctx context.Context, userID int64) ([]*domain.Holding, error)
	// ApplyTrade atomically commits a trade mutation: the new cash balance,
	// the holding upsert (or delete when quantity reaches zero) and the
	// transaction append, all in one durable transaction. Returns the appended
	// transaction with its assigned ID. Returns ErrConflict (wrapped, nothing
	// committed) if the account version moved since the mutation was computed.
	ApplyTrade(ctx context.Context, m *domain.TradeMutation) (*domain.Transaction, error)
}

// TransactionLog reads the append-only audit trail of executed trades.
// Appending happens inside LedgerStore.ApplyTrade so that the ledger commit
// and the log append are durably atomic together.
type TransactionLog interface {
	// ListRecent retrieves a user's most recent transactions, newest first.
	ListRecent(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error)
	// CountForUser counts all transactions ever executed by the user.
	CountForUser(ctx context.Context, userID int64) (int, error)
}
