package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.LedgerStore and ports.TransactionLog
// interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_trader.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency; busy timeout so concurrent writers queue
	// instead of failing immediately.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writes at the driver level; SQLite handles
	// the rest internally.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite ledger store initialized", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// Decimals are stored as TEXT to keep money math exact end to end.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		user_id INTEGER PRIMARY KEY,
		cash_balance TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holdings (
		user_id INTEGER NOT NULL REFERENCES accounts(user_id),
		symbol TEXT NOT NULL,
		quantity TEXT NOT NULL,
		average_cost TEXT NOT NULL,
		PRIMARY KEY (user_id, symbol)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL REFERENCES accounts(user_id),
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price_per_unit TEXT NOT NULL,
		fee TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite ledger store")
		return r.db.Close()
	}
	return nil
}

// --- LedgerStore Implementation ---

// CreateAccount creates an account with the given opening balance.
func (r *Repository) CreateAccount(ctx context.Context, userID int64, openingBalance decimal.Decimal) (*domain.Account, error) {
	const query = `
	INSERT INTO accounts (user_id, cash_balance, version, created_at, updated_at)
	VALUES (?, ?, 0, ?, ?)`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query, userID, openingBalance.String(), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create account for user %d: %w", userID, err)
	}
	r.logger.Debug(ctx, "Account created", map[string]interface{}{"userID": userID, "openingBalance": openingBalance.String()})
	return &domain.Account{
		UserID:      userID,
		CashBalance: openingBalance,
		Version:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetAccount retrieves an account by user ID. Returns nil, nil if not found.
func (r *Repository) GetAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	const query = `
	SELECT user_id, cash_balance, version, created_at, updated_at
	FROM accounts
	WHERE user_id = ?`

	a := &domain.Account{}
	var cash string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&a.UserID, &cash, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query account for user %d: %w", userID, err)
	}
	a.CashBalance, err = decimal.NewFromString(cash)
	if err != nil {
		return nil, fmt.Errorf("corrupt cash balance %q for user %d: %w", cash, userID, err)
	}
	return a, nil
}

// GetHolding retrieves the holding for (userID, symbol). Returns nil, nil if
// the user holds none of the symbol.
func (r *Repository) GetHolding(ctx context.Context, userID int64, symbol string) (*domain.Holding, error) {
	const query = `
	SELECT user_id, symbol, quantity, average_cost
	FROM holdings
	WHERE user_id = ? AND symbol = ?`

	row := r.db.QueryRowContext(ctx, query, userID, symbol)
	h, err := scanHolding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query holding %s for user %d: %w", symbol, userID, err)
	}
	return h, nil
}

// ListHoldings retrieves all of a user's holdings, ordered by symbol.
func (r *Repository) ListHoldings(ctx context.Context, userID int64) ([]*domain.Holding, error) {
	const query = `
	SELECT user_id, symbol, quantity, average_cost
	FROM holdings
	WHERE user_id = ?
	ORDER BY symbol`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings for user %d: %w", userID, err)
	}
	defer rows.Close()

	holdings := make([]*domain.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding during ListHoldings: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding rows: %w", err)
	}
	return holdings, nil
}

// ApplyTrade commits the whole per-account mutation in a single SQLite
// transaction: the conditional cash update, the holding upsert or delete, and
// the transaction append. If the account version moved since the mutation was
// computed nothing is committed and ErrConflict is returned.
func (r *Repository) ApplyTrade(ctx context.Context, m *domain.TradeMutation) (*domain.Transaction, error) {
	if m == nil || m.Holding == nil || m.Transaction == nil {
		return nil, fmt.Errorf("incomplete trade mutation: %w", ports.ErrInvalidRequest)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin trade transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	// Conditional cash update doubles as the version check: zero rows affected
	// means another writer committed since the snapshot was read.
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET cash_balance = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`,
		m.NewCashBalance.String(), time.Now().UTC(), m.UserID, m.AccountVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update cash balance for user %d: %w", m.UserID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected for user %d: %w", m.UserID, err)
	}
	if affected == 0 {
		r.logger.Debug(ctx, "Stale account version on trade apply", map[string]interface{}{
			"userID": m.UserID, "snapshotVersion": m.AccountVersion,
		})
		return nil, fmt.Errorf("account %d version %d is stale: %w", m.UserID, m.AccountVersion, ports.ErrConflict)
	}

	h := m.Holding
	if h.Quantity.IsZero() {
		// A fully sold-out holding is removed; a later buy recreates it with a
		// fresh average cost.
		_, err = tx.ExecContext(ctx, `DELETE FROM holdings WHERE user_id = ? AND symbol = ?`, h.UserID, h.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to delete emptied holding %s for user %d: %w", h.Symbol, h.UserID, err)
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO holdings (user_id, symbol, quantity, average_cost)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, symbol)
			DO UPDATE SET quantity = excluded.quantity, average_cost = excluded.average_cost`,
			h.UserID, h.Symbol, h.Quantity.String(), h.AverageCost.String())
		if err != nil {
			return nil, fmt.Errorf("failed to upsert holding %s for user %d: %w", h.Symbol, h.UserID, err)
		}
	}

	t := m.Transaction
	res, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (reference, user_id, symbol, side, quantity, price_per_unit, fee, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Reference, t.UserID, t.Symbol, string(t.Side), t.Quantity.String(),
		t.PricePerUnit.String(), t.Fee.String(), t.TotalAmount.String(), t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction for user %d: %w", t.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction ID for user %d: %w", t.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trade for user %d: %w", t.UserID, err)
	}

	committed := *t
	committed.ID = id
	r.logger.Debug(ctx, "Trade applied", map[string]interface{}{
		"userID": m.UserID, "transactionID": id, "symbol": t.Symbol, "side": t.Side,
	})
	return &committed, nil
}

// --- TransactionLog Implementation ---

// ListRecent retrieves a user's most recent transactions, newest first.
func (r *Repository) ListRecent(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	const query = `
	SELECT id, reference, user_id, symbol, side, quantity, price_per_unit, fee, total_amount, created_at
	FROM transactions
	WHERE user_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction during ListRecent: %w", err)
		}
		txs = append(txs, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txs, nil
}

// CountForUser counts all transactions ever executed by the user.
func (r *Repository) CountForUser(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM transactions WHERE user_id = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions for user %d: %w", userID, err)
	}
	return count, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(s scanner) (*domain.Holding, error) {
	h := &domain.Holding{}
	var quantity, avgCost string
	if err := s.Scan(&h.UserID, &h.Symbol, &quantity, &avgCost); err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	var err error
	if h.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("corrupt holding quantity %q: %w", quantity, err)
	}
	if h.AverageCost, err = decimal.NewFromString(avgCost); err != nil {
		return nil, fmt.Errorf("corrupt holding average cost %q: %w", avgCost, err)
	}
	return h, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var side, quantity, price, fee, total string
	err := s.Scan(&t.ID, &t.Reference, &t.UserID, &t.Symbol, &side, &quantity, &price, &fee, &total, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("corrupt transaction quantity %q: %w", quantity, err)
	}
	if t.PricePerUnit, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("corrupt transaction price %q: %w", price, err)
	}
	if t.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("corrupt transaction fee %q: %w", fee, err)
	}
	if t.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("corrupt transaction total %q: %w", total, err)
	}
	return t, nil
}
