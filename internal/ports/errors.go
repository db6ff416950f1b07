package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors so
// callers can classify failures with errors.Is.
var (
	// General errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Trade validation errors. These are non-retryable: the caller must change
	// the input (different quantity, wait for funds) before trying again.
	ErrInvalidQuantity      = errors.New("trade quantity must be positive")
	ErrInvalidSide          = errors.New("trade side must be BUY or SELL")
	ErrUnknownSymbol        = errors.New("symbol is not recognized by the price oracle")
	ErrPriceUnavailable     = errors.New("no usable price for symbol")
	ErrInsufficientFunds    = errors.New("insufficient funds for trade")
	ErrInsufficientHoldings = errors.New("insufficient holdings for trade")
	ErrAccountNotFound      = errors.New("account not found")

	// Concurrency / infrastructure errors.
	// ErrConflict means a concurrent mutation invalidated the snapshot a trade
	// was computed from; the engine re-validates and retries the whole trade.
	// ErrTransient is surfaced to callers and may be retried by them.
	ErrConflict  = errors.New("concurrent mutation detected, snapshot is stale")
	ErrTransient = errors.New("transient infrastructure failure")

	// Oracle specific errors
	ErrOracleUnavailable = errors.New("price oracle is unavailable")
	ErrRateLimited       = errors.New("API rate limit exceeded")

	// Database specific errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
