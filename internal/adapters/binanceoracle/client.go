package binanceoracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.PriceOracle interface using the go-binance
// library's public spot ticker endpoints. Only symbols in the configured
// whitelist are quoted; anything else is ErrNotFound without a network call.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	symbols    map[string]struct{}
}

// Config holds configuration specific to the Binance oracle adapter.
type Config struct {
	APIKey     string // Optional; ticker endpoints are public
	SecretKey  string
	UseTestnet bool
	Symbols    []string // Whitelist of quotable symbols (e.g., "BTCUSDT")
	Logger     ports.Logger
}

// New creates a new Binance price oracle adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance oracle")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("at least one supported symbol is required")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global binance.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance oracle configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance oracle configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		symbols:    symbols,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1121: // Invalid symbol
			mappedErr = ports.ErrNotFound
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrOracleUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrOracleUnavailable, err)
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Quote retrieves the last traded price and 24h change for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	op := "Quote"
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := c.symbols[symbol]; !ok {
		return nil, fmt.Errorf("symbol %q is not supported: %w", symbol, ports.ErrNotFound)
	}

	stats, err := c.spotClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s: %w", symbol, ports.ErrNotFound)
		c.logger.Error(ctx, err, op+" returned empty result", map[string]interface{}{"symbol": symbol})
		return nil, err
	}

	price, err := decimal.NewFromString(stats[0].LastPrice)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", stats[0].LastPrice, err)
		return nil, c.handleError(ctx, parseErr, op)
	}
	change, err := decimal.NewFromString(stats[0].PriceChangePercent)
	if err != nil {
		// The 24h change is informational; a bad value degrades to zero.
		c.logger.Warn(ctx, op+": could not parse 24h change, using 0", map[string]interface{}{
			"symbol": symbol, "value": stats[0].PriceChangePercent,
		})
		change = decimal.Zero
	}

	return &domain.Quote{
		Symbol:    symbol,
		Price:     price,
		Change24h: change,
		AsOf:      time.UnixMilli(stats[0].CloseTime).UTC(),
	}, nil
}

// Symbols returns the sorted whitelist of quotable symbols.
func (c *Client) Symbols() []string {
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
