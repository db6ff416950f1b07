package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultMaxRetries     = 3
)

// Engine validates a trade request, quotes the price, computes the resulting
// cash/holding state and applies it to the ledger as one atomic mutation.
//
// Two layers keep same-user trades from interleaving: a per-user mutex held
// for the whole validate-compute-apply cycle, and the ledger store's account
// version check, which rejects any mutation computed from a stale snapshot.
// Version conflicts are retried from a fresh read up to MaxRetries times.
type Engine struct {
	logger     ports.Logger
	oracle     ports.PriceOracle
	ledger     ports.LedgerStore
	fees       FeePolicy
	timeout    time.Duration
	maxRetries int

	userLocks sync.Map // userID -> *sync.Mutex
}

// Config holds the engine's dependencies and tuning knobs.
type Config struct {
	Logger         ports.Logger
	Oracle         ports.PriceOracle
	Ledger         ports.LedgerStore
	Fees           FeePolicy
	RequestTimeout time.Duration // Bound on each oracle call and ledger commit
	MaxRetries     int           // Conflict retries before surfacing ErrTransient
}

// New creates a trade engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil || cfg.Oracle == nil || cfg.Ledger == nil || cfg.Fees == nil {
		return nil, fmt.Errorf("missing required dependencies for trade engine")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	return &Engine{
		logger:     cfg.Logger,
		oracle:     cfg.Oracle,
		ledger:     cfg.Ledger,
		fees:       cfg.Fees,
		timeout:    timeout,
		maxRetries: retries,
	}, nil
}

// TradeRequest is one buy or sell order against the user's virtual account.
type TradeRequest struct {
	UserID   int64
	Symbol   string
	Side     domain.Side
	Quantity decimal.Decimal
}

// TradeResult reports a successfully executed trade: the appended transaction
// plus the account and holding state it produced. RealizedPnL is set on sells
// only; it is reported, never stored on the holding.
type TradeResult struct {
	Transaction *domain.Transaction
	CashBalance decimal.Decimal
	Holding     *domain.Holding
	RealizedPnL decimal.Decimal
}

// ExecuteTrade validates and executes one trade. Preconditions are checked in
// a fixed order, each with a distinct error: positive quantity, known symbol,
// usable quote, sufficient holdings (sell) or funds (buy). On success the
// ledger reflects the mutation exactly once; on any failure nothing changes.
func (e *Engine) ExecuteTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if !req.Side.IsValid() {
		return nil, fmt.Errorf("side %q: %w", req.Side, ports.ErrInvalidSide)
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("quantity %s: %w", req.Quantity, ports.ErrInvalidQuantity)
	}

	// Serialize the whole read-modify-write cycle per user. Trades for
	// unrelated users proceed in parallel.
	lock := e.userLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		result, err := e.tryExecute(ctx, req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ports.ErrConflict) {
			return nil, err
		}
		// A concurrent writer moved the account. Re-validate everything from a
		// fresh snapshot rather than reapplying the stale mutation.
		lastErr = err
		e.logger.Warn(ctx, "Trade conflicted with concurrent mutation, retrying", map[string]interface{}{
			"userID": req.UserID, "symbol": req.Symbol, "attempt": attempt,
		})
	}
	return nil, fmt.Errorf("trade for user %d gave up after %d conflicts: %w: %w",
		req.UserID, e.maxRetries, ports.ErrTransient, lastErr)
}

// tryExecute runs one validate-compute-apply attempt against a fresh snapshot.
func (e *Engine) tryExecute(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	quote, err := e.fetchQuote(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	account, err := e.ledger.GetAccount(opCtx, req.UserID)
	if err != nil {
		return nil, classifyInfra(err, "read account")
	}
	if account == nil {
		return nil, fmt.Errorf("user %d: %w", req.UserID, ports.ErrAccountNotFound)
	}
	holding, err := e.ledger.GetHolding(opCtx, req.UserID, req.Symbol)
	if err != nil {
		return nil, classifyInfra(err, "read holding")
	}
	if holding == nil {
		holding = &domain.Holding{
			UserID:      req.UserID,
			Symbol:      req.Symbol,
			Quantity:    decimal.Zero,
			AverageCost: decimal.Zero,
		}
	}

	notional := quote.Price.Mul(req.Quantity)
	fee := e.fees.Fee(notional)

	var newCash decimal.Decimal
	newHolding := &domain.Holding{UserID: req.UserID, Symbol: req.Symbol}
	realized := decimal.Zero

	switch req.Side {
	case domain.Buy:
		totalCost := notional.Add(fee)
		if account.CashBalance.LessThan(totalCost) {
			shortfall := totalCost.Sub(account.CashBalance)
			return nil, fmt.Errorf("need %s, have %s (short %s): %w",
				totalCost, account.CashBalance, shortfall, ports.ErrInsufficientFunds)
		}
		newCash = account.CashBalance.Sub(totalCost)
		newHolding.Quantity = holding.Quantity.Add(req.Quantity)
		if holding.Quantity.IsZero() {
			newHolding.AverageCost = quote.Price
		} else {
			// Quantity-weighted average over the old basis and the new lot.
			oldBasis := holding.Quantity.Mul(holding.AverageCost)
			newBasis := req.Quantity.Mul(quote.Price)
			newHolding.AverageCost = oldBasis.Add(newBasis).Div(newHolding.Quantity)
		}
	case domain.Sell:
		if holding.Quantity.LessThan(req.Quantity) {
			shortfall := req.Quantity.Sub(holding.Quantity)
			return nil, fmt.Errorf("hold %s %s, selling %s (short %s): %w",
				holding.Quantity, req.Symbol, req.Quantity, shortfall, ports.ErrInsufficientHoldings)
		}
		proceeds := notional.Sub(fee)
		newCash = account.CashBalance.Add(proceeds)
		newHolding.Quantity = holding.Quantity.Sub(req.Quantity)
		// A sell never moves the average cost of the remaining units.
		newHolding.AverageCost = holding.AverageCost
		if newHolding.Quantity.IsZero() {
			newHolding.AverageCost = decimal.Zero
		}
		realized = quote.Price.Sub(holding.AverageCost).Mul(req.Quantity)
	default:
		// Side was validated on entry; a new variant must be handled here.
		return nil, fmt.Errorf("side %q: %w", req.Side, ports.ErrInvalidSide)
	}

	mutation := &domain.TradeMutation{
		UserID:         req.UserID,
		AccountVersion: account.Version,
		NewCashBalance: newCash,
		Holding:        newHolding,
		Transaction: &domain.Transaction{
			Reference:    uuid.NewString(),
			UserID:       req.UserID,
			Symbol:       req.Symbol,
			Side:         req.Side,
			Quantity:     req.Quantity,
			PricePerUnit: quote.Price,
			Fee:          fee,
			TotalAmount:  notional,
			CreatedAt:    time.Now().UTC(),
		},
	}

	committed, err := e.ledger.ApplyTrade(opCtx, mutation)
	if err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, err // retried by the caller
		}
		return nil, classifyInfra(err, "apply trade")
	}

	e.logger.Info(ctx, "Trade executed", map[string]interface{}{
		"userID": req.UserID, "symbol": req.Symbol, "side": req.Side,
		"quantity": req.Quantity.String(), "price": quote.Price.String(),
		"fee": fee.String(), "transactionID": committed.ID,
	})

	return &TradeResult{
		Transaction: committed,
		CashBalance: newCash,
		Holding:     newHolding,
		RealizedPnL: realized,
	}, nil
}

// fetchQuote obtains a bounded, validated quote for the symbol. Oracle errors
// map to the caller-facing taxonomy: unknown symbol is non-retryable, outages
// and timeouts are transient, a non-positive price is unusable.
func (e *Engine) fetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	quoteCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	quote, err := e.oracle.Quote(quoteCtx, symbol)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("symbol %q: %w", symbol, ports.ErrUnknownSymbol)
		}
		return nil, fmt.Errorf("quote for %q failed: %w: %w", symbol, ports.ErrTransient, err)
	}
	if quote == nil || !quote.Price.IsPositive() {
		return nil, fmt.Errorf("symbol %q: %w", symbol, ports.ErrPriceUnavailable)
	}
	return quote, nil
}

func (e *Engine) userLock(userID int64) *sync.Mutex {
	v, _ := e.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// classifyInfra wraps ledger store failures as transient so callers know the
// request may be retried as-is.
func classifyInfra(err error, op string) error {
	return fmt.Errorf("%s failed: %w: %w", op, ports.ErrTransient, err)
}
