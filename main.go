package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/adapters/binanceoracle"
	"cryptoPaperTrader/internal/adapters/logger"
	"cryptoPaperTrader/internal/adapters/sqlite"
	"cryptoPaperTrader/internal/app"
	"cryptoPaperTrader/internal/engine"
	"cryptoPaperTrader/internal/marketdata"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Ledger Store (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ledger store")
		log.Fatalf("FATAL: Failed to initialize ledger store: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing ledger store")
		}
	}()

	// 4. Initialize Price Oracle (Binance Adapter)
	oracle, err := binanceoracle.New(binanceoracle.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Symbols:    cfg.Symbols,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize price oracle")
		log.Fatalf("FATAL: Failed to initialize price oracle: %v", err)
	}

	// 5. Initialize Market Data Feed (cached oracle)
	market, err := marketdata.New(marketdata.Config{
		Logger:          appLogger,
		Source:          oracle,
		RefreshInterval: cfg.PriceRefreshInterval,
		MaxQuoteAge:     cfg.PriceMaxAge,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market data feed")
		log.Fatalf("FATAL: Failed to initialize market data feed: %v", err)
	}

	// 6. Initialize Fee Policy and Trade Engine
	fees, err := engine.NewPercentFeePolicy(cfg.FeeRate)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Invalid fee configuration")
		log.Fatalf("FATAL: Invalid fee configuration: %v", err)
	}
	tradeEngine, err := engine.New(engine.Config{
		Logger:         appLogger,
		Oracle:         market, // Engine quotes through the cached feed
		Ledger:         repo,
		Fees:           fees,
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxTradeRetries,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade engine")
		log.Fatalf("FATAL: Failed to initialize trade engine: %v", err)
	}

	// 7. Initialize Platform Service
	service, err := app.NewService(cfg, appLogger, tradeEngine, market, repo, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize platform service")
		log.Fatalf("FATAL: Failed to initialize platform service: %v", err)
	}
	appLogger.Info(context.Background(), "Platform service initialized")

	// 8. Start the Service
	if err := service.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Platform service exited with error")
		log.Fatalf("FATAL: Platform service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
