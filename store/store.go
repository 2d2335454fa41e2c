// Package store persists the pricewatch state: watched products, the
// whitelisted source set, and the append-only price history.
//
// The Schema is plain SQLite. Open the database with dbopen and apply the
// schema via Init:
//
//	db, err := dbopen.Open("pricewatch.db")
//	...
//	if err := store.Init(db); err != nil { ... }
//	st := store.New(db)
//
// Whitelisted sources are stored exactly as the operator supplied them
// (short or fully-qualified form); equivalence-set expansion happens in the
// catalog, not here.
//
// Mutations run through dbopen's SQLITE_BUSY retry helpers. The watch loop
// anticipates a second writer process on the same file, so a briefly locked
// database is an expected condition, not a failure.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/pricewatch/dbopen"
)

// Schema defines the three pricewatch tables.
//
// price_history.price is stored as canonical decimal TEXT, not REAL —
// monetary amounts must survive a round-trip without float drift.
// Deleting a product cascades to its history; the pipeline itself never
// deletes or updates a history row.
const Schema = `
CREATE TABLE IF NOT EXISTS watched_products (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS whitelisted_sources (
    chat_id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS price_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    product_id  INTEGER NOT NULL REFERENCES watched_products(id) ON DELETE CASCADE,
    price       TEXT NOT NULL,
    currency    TEXT NOT NULL,
    source_msg  TEXT,
    source_chat TEXT,
    created_at  INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_id);
`

// MaxSourceTextLen bounds the stored copy of the triggering message text.
const MaxSourceTextLen = 1000

// ErrDuplicateSource is returned by AddSource when the chat id is already
// whitelisted.
var ErrDuplicateSource = errors.New("store: source already whitelisted")

// Product is a watched product. Name is matched case-insensitively as a
// whole word against message text.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Observation is one detected price for a product at a point in time.
type Observation struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	SourceText string          `json:"source_text,omitempty"`
	SourceChat string          `json:"source_chat"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store wraps the SQLite database holding pricewatch state.
type Store struct {
	db *sql.DB
}

// Init creates the pricewatch tables if they don't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// New creates a Store backed by the given database. The database must have
// the schema applied (via Init).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying *sql.DB for sharing with the watch loop.
func (s *Store) DB() *sql.DB { return s.db }

// ListProducts returns all watched products in insertion order.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM watched_products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		var p Product
		var created int64
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		result = append(result, p)
	}
	return result, rows.Err()
}

// AddProduct inserts a watched product and returns it with its assigned id.
func (s *Store) AddProduct(ctx context.Context, name string) (Product, error) {
	res, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO watched_products (name) VALUES (?)`, name)
	if err != nil {
		return Product{}, fmt.Errorf("store: add product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Product{}, fmt.Errorf("store: add product id: %w", err)
	}
	return Product{ID: id, Name: name, CreatedAt: time.Now().UTC()}, nil
}

// DeleteProduct removes a watched product by id. It returns the deleted
// product's name and whether a row existed. Lookup and delete run in one
// transaction: the name in the reply must belong to the row this call
// removed, not to one another writer raced us for.
func (s *Store) DeleteProduct(ctx context.Context, id int64) (string, bool, error) {
	var name string
	var found bool
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT name FROM watched_products WHERE id = ?`, id).Scan(&name)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("store: delete product lookup: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM watched_products WHERE id = ?`, id); err != nil {
			return fmt.Errorf("store: delete product: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return name, found, nil
}

// ListSources returns all whitelisted chat ids as stored.
func (s *Store) ListSources(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM whitelisted_sources ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list sources: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan source: %w", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// AddSource whitelists a chat id. Returns ErrDuplicateSource if the id is
// already present.
func (s *Store) AddSource(ctx context.Context, chatID int64) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO whitelisted_sources (chat_id) VALUES (?)`, chatID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSource
		}
		return fmt.Errorf("store: add source: %w", err)
	}
	return nil
}

// DeleteSource removes a chat id from the whitelist. It reports whether a
// row existed.
func (s *Store) DeleteSource(ctx context.Context, chatID int64) (bool, error) {
	res, err := dbopen.Exec(ctx, s.db,
		`DELETE FROM whitelisted_sources WHERE chat_id = ?`, chatID)
	if err != nil {
		return false, fmt.Errorf("store: delete source: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddObservation appends a price observation. SourceText longer than
// MaxSourceTextLen runes is truncated before insert.
func (s *Store) AddObservation(ctx context.Context, o Observation) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO price_history (product_id, price, currency, source_msg, source_chat)
		VALUES (?, ?, ?, ?, ?)`,
		o.ProductID, o.Price.String(), o.Currency,
		TruncateSourceText(o.SourceText), o.SourceChat)
	if err != nil {
		return fmt.Errorf("store: add observation: %w", err)
	}
	return nil
}

// ListObservations returns the most recent observations for a product,
// newest first, up to limit (default 50 when limit <= 0).
func (s *Store) ListObservations(ctx context.Context, productID int64, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, price, currency, COALESCE(source_msg, ''), COALESCE(source_chat, ''), created_at
		FROM price_history WHERE product_id = ? ORDER BY id DESC LIMIT ?`,
		productID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list observations: %w", err)
	}
	defer rows.Close()

	var result []Observation
	for rows.Next() {
		var o Observation
		var price string
		var created int64
		if err := rows.Scan(&o.ID, &o.ProductID, &price, &o.Currency,
			&o.SourceText, &o.SourceChat, &created); err != nil {
			return nil, fmt.Errorf("store: scan observation: %w", err)
		}
		o.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("store: parse stored price %q: %w", price, err)
		}
		o.CreatedAt = time.Unix(created, 0).UTC()
		result = append(result, o)
	}
	return result, rows.Err()
}

// TruncateSourceText bounds text to MaxSourceTextLen runes.
func TruncateSourceText(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxSourceTextLen {
		return text
	}
	return string(runes[:MaxSourceTextLen])
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
