package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

const (
	defaultRefreshInterval = time.Minute
	defaultMaxQuoteAge     = 2 * time.Minute
)

// Service is a staleness-bounded price cache in front of a slower oracle.
// A background loop refreshes every supported symbol on a fixed interval so
// the market overview never hits the upstream API per request; Quote serves
// from the cache while an entry is fresh and falls through to the source
// otherwise. Service itself implements ports.PriceOracle, so the trade engine
// can sit directly on top of it.
type Service struct {
	logger          ports.Logger
	source          ports.PriceOracle
	refreshInterval time.Duration
	maxQuoteAge     time.Duration

	mu     sync.RWMutex
	quotes map[string]cachedQuote
}

type cachedQuote struct {
	quote     *domain.Quote
	fetchedAt time.Time
}

// Config holds configuration for the market data service.
type Config struct {
	Logger          ports.Logger
	Source          ports.PriceOracle
	RefreshInterval time.Duration // How often the background loop refreshes all symbols
	MaxQuoteAge     time.Duration // Cache entries older than this are refetched on demand
}

// New creates a market data service. It does not start the refresh loop;
// call Run for that.
func New(cfg Config) (*Service, error) {
	if cfg.Logger == nil || cfg.Source == nil {
		return nil, fmt.Errorf("missing required dependencies for market data service")
	}
	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	maxQuoteAge := cfg.MaxQuoteAge
	if maxQuoteAge <= 0 {
		maxQuoteAge = defaultMaxQuoteAge
	}
	return &Service{
		logger:          cfg.Logger,
		source:          cfg.Source,
		refreshInterval: refreshInterval,
		maxQuoteAge:     maxQuoteAge,
		quotes:          make(map[string]cachedQuote),
	}, nil
}

// Run refreshes all supported symbols immediately and then on every tick
// until the context is canceled.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info(ctx, "Market data refresh loop starting", map[string]interface{}{
		"interval": s.refreshInterval.String(), "symbols": len(s.source.Symbols()),
	})
	s.refreshAll(ctx)

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Market data refresh loop stopped")
			return
		case <-ticker.C:
			s.refreshAll(ctx)
		}
	}
}

// refreshAll fetches every supported symbol once. Individual failures are
// logged and skipped; the stale entry stays usable until MaxQuoteAge.
func (s *Service) refreshAll(ctx context.Context) {
	for _, symbol := range s.source.Symbols() {
		if ctx.Err() != nil {
			return
		}
		quote, err := s.source.Quote(ctx, symbol)
		if err != nil {
			s.logger.Warn(ctx, "Price refresh failed for symbol", map[string]interface{}{
				"symbol": symbol, "error": err.Error(),
			})
			continue
		}
		s.store(quote)
	}
}

func (s *Service) store(quote *domain.Quote) {
	s.mu.Lock()
	s.quotes[quote.Symbol] = cachedQuote{quote: quote, fetchedAt: time.Now()}
	s.mu.Unlock()
}

// Quote returns the cached quote for a symbol while it is fresh, otherwise
// fetches through to the source and caches the result.
func (s *Service) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	s.mu.RLock()
	entry, ok := s.quotes[symbol]
	s.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) <= s.maxQuoteAge {
		q := *entry.quote
		return &q, nil
	}

	quote, err := s.source.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.store(quote)
	q := *quote
	return &q, nil
}

// Symbols returns the symbols the underlying oracle supports.
func (s *Service) Symbols() []string {
	return s.source.Symbols()
}

// Snapshot returns a copy of every cached quote, sorted by symbol. Entries
// older than MaxQuoteAge are omitted.
func (s *Service) Snapshot() []*domain.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Quote, 0, len(s.quotes))
	for _, entry := range s.quotes {
		if time.Since(entry.fetchedAt) > s.maxQuoteAge {
			continue
		}
		q := *entry.quote
		out = append(out, &q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
