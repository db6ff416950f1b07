package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/engine"
	"cryptoPaperTrader/internal/marketdata"
	"cryptoPaperTrader/internal/ports"
)

const maxRecentTradesLimit = 100

// Service is the platform's in-process call boundary. The surrounding
// transport (whatever it is) hands it pre-authenticated user IDs; the service
// never verifies credentials itself. It composes the trade engine, the market
// data feed and the ledger into the operations a client session needs.
type Service struct {
	cfg    *config.Config
	logger ports.Logger
	engine *engine.Engine
	market *marketdata.Service
	ledger ports.LedgerStore
	txLog  ports.TransactionLog
}

// NewService creates the platform service.
func NewService(
	cfg *config.Config,
	logger ports.Logger,
	eng *engine.Engine,
	market *marketdata.Service,
	ledger ports.LedgerStore,
	txLog ports.TransactionLog,
) (*Service, error) {
	if cfg == nil || logger == nil || eng == nil || market == nil || ledger == nil || txLog == nil {
		return nil, fmt.Errorf("missing required dependencies for platform service")
	}
	return &Service{
		cfg:    cfg,
		logger: logger,
		engine: eng,
		market: market,
		ledger: ledger,
		txLog:  txLog,
	}, nil
}

// Start runs the background market data refresh until the context is canceled
// or a shutdown signal arrives.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting platform service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	s.market.Run(ctx)

	s.logger.Info(ctx, "Platform service stopped.")
	return nil
}

// EnsureAccount returns the user's account, creating it with the configured
// opening balance the first time the user is seen.
func (s *Service) EnsureAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account for user %d: %w", userID, err)
	}
	if account != nil {
		return account, nil
	}
	account, err = s.ledger.CreateAccount(ctx, userID, s.cfg.OpeningBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to create account for user %d: %w", userID, err)
	}
	s.logger.Info(ctx, "Account created with opening balance", map[string]interface{}{
		"userID": userID, "openingBalance": s.cfg.OpeningBalance.String(),
	})
	return account, nil
}

// ExecuteTrade runs one buy or sell for an authenticated user.
func (s *Service) ExecuteTrade(ctx context.Context, userID int64, symbol string, side domain.Side, quantity decimal.Decimal) (*engine.TradeResult, error) {
	return s.engine.ExecuteTrade(ctx, engine.TradeRequest{
		UserID:   userID,
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Side:     side,
		Quantity: quantity,
	})
}

// PortfolioHolding is one holding enriched with current market data.
// Priced is false when no usable quote was available; the holding is still
// listed but excluded from the portfolio total.
type PortfolioHolding struct {
	Symbol        string
	Quantity      decimal.Decimal
	AverageCost   decimal.Decimal
	Priced        bool
	CurrentPrice  decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Change24h     decimal.Decimal
}

// Portfolio is a read-only snapshot of one account: cash plus all holdings at
// current prices.
type Portfolio struct {
	UserID      int64
	CashBalance decimal.Decimal
	Holdings    []PortfolioHolding
	TotalValue  decimal.Decimal // Cash plus the market value of every priced holding
}

// GetPortfolio returns the user's cash and holdings valued at current prices.
func (s *Service) GetPortfolio(ctx context.Context, userID int64) (*Portfolio, error) {
	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account for user %d: %w", userID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ports.ErrAccountNotFound)
	}

	holdings, err := s.ledger.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings for user %d: %w", userID, err)
	}

	portfolio := &Portfolio{
		UserID:      userID,
		CashBalance: account.CashBalance,
		Holdings:    make([]PortfolioHolding, 0, len(holdings)),
		TotalValue:  account.CashBalance,
	}
	for _, h := range holdings {
		ph := PortfolioHolding{
			Symbol:      h.Symbol,
			Quantity:    h.Quantity,
			AverageCost: h.AverageCost,
		}
		quote, err := s.market.Quote(ctx, h.Symbol)
		if err != nil {
			// Keep the holding visible even when it cannot be valued.
			s.logger.Warn(ctx, "Could not price holding for portfolio", map[string]interface{}{
				"userID": userID, "symbol": h.Symbol, "error": err.Error(),
			})
		} else if quote.Price.IsPositive() {
			ph.Priced = true
			ph.CurrentPrice = quote.Price
			ph.MarketValue = h.MarketValue(quote.Price)
			ph.UnrealizedPnL = h.UnrealizedPnL(quote.Price)
			ph.Change24h = quote.Change24h
			portfolio.TotalValue = portfolio.TotalValue.Add(ph.MarketValue)
		}
		portfolio.Holdings = append(portfolio.Holdings, ph)
	}
	return portfolio, nil
}

// GetRecentTransactions returns the user's most recent trades, newest first.
// A non-positive limit falls back to the configured default; oversized limits
// are capped.
func (s *Service) GetRecentTransactions(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = s.cfg.RecentTradesLimit
	}
	if limit > maxRecentTradesLimit {
		limit = maxRecentTradesLimit
	}
	txs, err := s.txLog.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions for user %d: %w", userID, err)
	}
	return txs, nil
}

// MarketPrices returns the latest cached quote for every supported symbol.
func (s *Service) MarketPrices() []*domain.Quote {
	return s.market.Snapshot()
}
