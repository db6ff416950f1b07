package ports

import (
	"context"

	"cryptoPaperTrader/internal/domain"
)

// PriceOracle supplies the current market price for a symbol at request time.
// Implementations must return ErrNotFound (wrapped) for symbols they do not
// recognize and ErrOracleUnavailable / ErrTimeout for transient failures.
type PriceOracle interface {
	// Quote returns the current price and its timestamp for a symbol.
	Quote(ctx context.Context, symbol string) (*domain.Quote, error)
	// Symbols returns the set of symbols the oracle can quote.
	Symbols() []string
}
