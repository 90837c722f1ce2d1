// Package cart provides a SQLite-backed store for per-user shopping carts
// and conversation context. Carts are persisted across server restarts so a
// returning shopper picks up where they left off.
package cart

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Item is a single product in a user's cart.
type Item struct {
	// Name is the verified product name as stored in the catalog.
	Name string `json:"name"`
	// Quantity is how many of the product the user wants.
	Quantity int `json:"quantity"`
	// Price is the unit price at the time the item was added.
	Price float64 `json:"price"`
	// AddedAt is when the item was persisted.
	AddedAt time.Time `json:"added_at"`
}

// Store persists carts and conversation context keyed by user id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Items returns the user's cart, oldest-added first.
	Items(ctx context.Context, userID string) ([]Item, error)
	// AddItem inserts a product into the user's cart. Adding an item that is
	// already present increments its quantity.
	AddItem(ctx context.Context, userID, name string, quantity int, price float64) error
	// RemoveItem decrements the quantity of a product, removing it entirely
	// when the quantity reaches zero. Removing an absent item is a no-op.
	RemoveItem(ctx context.Context, userID, name string, quantity int) error
	// ClearCart removes every item from the user's cart.
	ClearCart(ctx context.Context, userID string) error

	// Context returns the user's conversation context, oldest-first.
	Context(ctx context.Context, userID string) ([]string, error)
	// AppendContext adds one entry to the user's conversation context.
	AppendContext(ctx context.Context, userID, entry string) error
	// ReplaceContext atomically replaces the user's conversation context.
	ReplaceContext(ctx context.Context, userID string, entries []string) error
	// ClearContext removes the user's conversation context.
	ClearContext(ctx context.Context, userID string) error

	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the cart database. It resolves
// to ~/.shopgenie/carts.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cart: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".shopgenie")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cart: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "carts.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cart: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS cart_items (
    user_id    TEXT    NOT NULL,
    name       TEXT    NOT NULL,
    quantity   INTEGER NOT NULL CHECK(quantity > 0),
    price      REAL    NOT NULL,
    added_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    PRIMARY KEY (user_id, name)
);
CREATE TABLE IF NOT EXISTS user_context (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT    NOT NULL,
    entry      TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_context_user
    ON user_context (user_id, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("cart: migrate: %w", err)
	}
	return nil
}

// Items returns the user's cart, oldest-added first.
func (s *SQLiteStore) Items(ctx context.Context, userID string) ([]Item, error) {
	const q = `
SELECT name, quantity, price, added_at
FROM   cart_items
WHERE  user_id = ?
ORDER  BY added_at ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var ts int64
		if err := rows.Scan(&it.Name, &it.Quantity, &it.Price, &ts); err != nil {
			return nil, fmt.Errorf("cart: items scan: %w", err)
		}
		it.AddedAt = time.Unix(ts, 0)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart: items rows: %w", err)
	}
	return items, nil
}

// AddItem inserts a product into the user's cart, incrementing quantity on
// conflict.
func (s *SQLiteStore) AddItem(ctx context.Context, userID, name string, quantity int, price float64) error {
	if quantity <= 0 {
		return fmt.Errorf("cart: quantity must be positive, got %d", quantity)
	}
	const q = `
INSERT INTO cart_items (user_id, name, quantity, price, added_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id, name)
DO UPDATE SET quantity = quantity + excluded.quantity, price = excluded.price`
	if _, err := s.db.ExecContext(ctx, q, userID, name, quantity, price, time.Now().Unix()); err != nil {
		return fmt.Errorf("cart: add item: %w", err)
	}
	return nil
}

// RemoveItem decrements the quantity of a product, deleting the row when it
// drops to zero or below. Removing an absent item is a no-op.
func (s *SQLiteStore) RemoveItem(ctx context.Context, userID, name string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("cart: quantity must be positive, got %d", quantity)
	}
	const dec = `
UPDATE cart_items SET quantity = quantity - ?
WHERE  user_id = ? AND name = ?`
	if _, err := s.db.ExecContext(ctx, dec, quantity, userID, name); err != nil {
		return fmt.Errorf("cart: remove item: %w", err)
	}
	const sweep = `DELETE FROM cart_items WHERE user_id = ? AND name = ? AND quantity <= 0`
	if _, err := s.db.ExecContext(ctx, sweep, userID, name); err != nil {
		return fmt.Errorf("cart: remove item sweep: %w", err)
	}
	return nil
}

// ClearCart removes every item from the user's cart.
func (s *SQLiteStore) ClearCart(ctx context.Context, userID string) error {
	const q = `DELETE FROM cart_items WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("cart: clear cart: %w", err)
	}
	return nil
}

// Context returns the user's conversation context, oldest-first.
func (s *SQLiteStore) Context(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT entry FROM user_context WHERE user_id = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: context: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("cart: context scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart: context rows: %w", err)
	}
	return entries, nil
}

// AppendContext adds one entry to the user's conversation context.
func (s *SQLiteStore) AppendContext(ctx context.Context, userID, entry string) error {
	const q = `INSERT INTO user_context (user_id, entry, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, userID, entry, time.Now().Unix()); err != nil {
		return fmt.Errorf("cart: append context: %w", err)
	}
	return nil
}

// ReplaceContext atomically replaces the user's conversation context.
func (s *SQLiteStore) ReplaceContext(ctx context.Context, userID string, entries []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cart: replace context begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_context WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("cart: replace context delete: %w", err)
	}
	now := time.Now().Unix()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_context (user_id, entry, created_at) VALUES (?, ?, ?)`,
			userID, e, now); err != nil {
			return fmt.Errorf("cart: replace context insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cart: replace context commit: %w", err)
	}
	return nil
}

// ClearContext removes the user's conversation context.
func (s *SQLiteStore) ClearContext(ctx context.Context, userID string) error {
	const q = `DELETE FROM user_context WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("cart: clear context: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("cart: close: %w", err)
	}
	return nil
}
