package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/adapters/sqlite"
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/engine"
	"cryptoPaperTrader/internal/marketdata"
	"cryptoPaperTrader/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stubOracle struct {
	prices map[string]decimal.Decimal
}

func (o *stubOracle) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	price, ok := o.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %q is not supported: %w", symbol, ports.ErrNotFound)
	}
	return &domain.Quote{
		Symbol:    symbol,
		Price:     price,
		Change24h: decimal.NewFromFloat(1.5),
		AsOf:      time.Now(),
	}, nil
}

func (o *stubOracle) Symbols() []string {
	out := make([]string, 0, len(o.prices))
	for s := range o.prices {
		out = append(out, s)
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// setupService wires a service against a temporary database and a stubbed
// price source, the same shape main assembles in production. A tiny
// maxQuoteAge turns the market data cache into a pass-through, so tests that
// move prices between calls see the move immediately; zero keeps the default.
func setupService(t *testing.T, oracle *stubOracle, maxQuoteAge time.Duration) (*Service, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "paper-trader-app-test-*")
	require.NoError(t, err)

	log := &mockLogger{}
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: log,
	})
	require.NoError(t, err)

	market, err := marketdata.New(marketdata.Config{
		Logger:      log,
		Source:      oracle,
		MaxQuoteAge: maxQuoteAge,
	})
	require.NoError(t, err)

	fees, err := engine.NewPercentFeePolicy(decimal.Zero)
	require.NoError(t, err)
	eng, err := engine.New(engine.Config{
		Logger: log,
		Oracle: market,
		Ledger: repo,
		Fees:   fees,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		OpeningBalance:    dec("100000"),
		RecentTradesLimit: 5,
	}
	svc, err := NewService(cfg, log, eng, market, repo, repo)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return svc, cleanup
}

func TestNewService_MissingDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	oracle := &stubOracle{prices: map[string]decimal.Decimal{"BTCUSDT": dec("100")}}
	svc, cleanup := setupService(t, oracle, 0)
	defer cleanup()
	ctx := context.Background()

	first, err := svc.EnsureAccount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "100000", first.CashBalance.String())

	// A trade changes the balance; EnsureAccount must not reset it
	_, err = svc.ExecuteTrade(ctx, 42, "BTCUSDT", domain.Buy, dec("10"))
	require.NoError(t, err)

	again, err := svc.EnsureAccount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "99000", again.CashBalance.String())
}

func TestExecuteTrade_NormalizesSymbol(t *testing.T) {
	oracle := &stubOracle{prices: map[string]decimal.Decimal{"BTCUSDT": dec("100")}}
	svc, cleanup := setupService(t, oracle, 0)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.EnsureAccount(ctx, 1)
	require.NoError(t, err)

	result, err := svc.ExecuteTrade(ctx, 1, "  btcusdt ", domain.Buy, dec("1"))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", result.Transaction.Symbol)
}

func TestGetPortfolio(t *testing.T) {
	oracle := &stubOracle{prices: map[string]decimal.Decimal{
		"BTCUSDT": dec("100"),
		"ETHUSDT": dec("10"),
	}}
	svc, cleanup := setupService(t, oracle, time.Nanosecond)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.EnsureAccount(ctx, 1)
	require.NoError(t, err)
	_, err = svc.ExecuteTrade(ctx, 1, "BTCUSDT", domain.Buy, dec("2"))
	require.NoError(t, err)
	_, err = svc.ExecuteTrade(ctx, 1, "ETHUSDT", domain.Buy, dec("5"))
	require.NoError(t, err)

	// Prices move after the buys
	oracle.prices["BTCUSDT"] = dec("150")
	oracle.prices["ETHUSDT"] = dec("8")

	portfolio, err := svc.GetPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), portfolio.UserID)
	// 100000 - 200 - 50 = 99750
	assert.Equal(t, "99750", portfolio.CashBalance.String())
	require.Len(t, portfolio.Holdings, 2)

	btc := portfolio.Holdings[0]
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.True(t, btc.Priced)
	assert.Equal(t, "300", btc.MarketValue.String())
	assert.Equal(t, "100", btc.UnrealizedPnL.String())

	eth := portfolio.Holdings[1]
	assert.Equal(t, "ETHUSDT", eth.Symbol)
	assert.True(t, eth.Priced)
	assert.Equal(t, "40", eth.MarketValue.String())
	assert.Equal(t, "-10", eth.UnrealizedPnL.String())

	// 99750 + 300 + 40
	assert.Equal(t, "100090", portfolio.TotalValue.String())
}

func TestGetPortfolio_UnpricedHoldingStillListed(t *testing.T) {
	oracle := &stubOracle{prices: map[string]decimal.Decimal{"BTCUSDT": dec("100")}}
	svc, cleanup := setupService(t, oracle, time.Nanosecond)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.EnsureAccount(ctx, 1)
	require.NoError(t, err)
	_, err = svc.ExecuteTrade(ctx, 1, "BTCUSDT", domain.Buy, dec("1"))
	require.NoError(t, err)

	// The symbol is delisted from the feed after the position was opened
	delete(oracle.prices, "BTCUSDT")

	portfolio, err := svc.GetPortfolio(ctx, 1)
	require.NoError(t, err)
	require.Len(t, portfolio.Holdings, 1)
	assert.False(t, portfolio.Holdings[0].Priced)
	// The unpriced holding is excluded from the total
	assert.True(t, portfolio.TotalValue.Equal(portfolio.CashBalance))
}

func TestGetPortfolio_UnknownUser(t *testing.T) {
	oracle := &stubOracle{prices: map[string]decimal.Decimal{"BTCUSDT": dec("100")}}
	svc, cleanup := setupService(t, oracle, 0)
	defer cleanup()

	_, err := svc.GetPortfolio(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrAccountNotFound)
}

func TestGetRecentTransactions_DefaultLimit(t *testing.T) {
	oracle := &stubOracle{prices: map[string]decimal.Decimal{"BTCUSDT": dec("100")}}
	svc, cleanup := setupService(t, oracle, 0)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.EnsureAccount(ctx, 1)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err = svc.ExecuteTrade(ctx, 1, "BTCUSDT", domain.Buy, dec("1"))
		require.NoError(t, err)
	}

	txs, err := svc.GetRecentTransactions(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 5)

	txs, err = svc.GetRecentTransactions(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	// No trades yet for this user
	_, err = svc.EnsureAccount(ctx, 2)
	require.NoError(t, err)
	txs, err = svc.GetRecentTransactions(ctx, 2, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMarketPrices(t *testing.T) {
	oracle := &stubOracle{prices: map[string]decimal.Decimal{
		"BTCUSDT": dec("100"),
		"ETHUSDT": dec("10"),
	}}
	svc, cleanup := setupService(t, oracle, 0)
	defer cleanup()

	// Nothing cached before the refresh loop has run
	assert.Empty(t, svc.MarketPrices())

	// A portfolio read pulls quotes through the cache
	_, err := svc.EnsureAccount(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.ExecuteTrade(context.Background(), 1, "BTCUSDT", domain.Buy, dec("1"))
	require.NoError(t, err)

	prices := svc.MarketPrices()
	require.Len(t, prices, 1)
	assert.Equal(t, "BTCUSDT", prices[0].Symbol)
}
