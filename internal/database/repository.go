package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateLot is returned by OpenLot when an open lot already exists
	// for the symbol. It surfaces the storage-level uniqueness constraint, so
	// two concurrent buys for the same symbol cannot both succeed.
	ErrDuplicateLot = errors.New("open lot already exists for symbol")

	// ErrNoOpenLot is returned by CloseLot and GetOpenLot when the symbol has
	// no open position.
	ErrNoOpenLot = errors.New("no open lot for symbol")
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// ACTIVE LOTS
// ============================================================================

// HasOpenLot reports whether an open lot exists for the symbol
func (r *Repository) HasOpenLot(ctx context.Context, symbol string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM active_lots WHERE symbol = $1)`, symbol,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking open lot for %s: %w", symbol, err)
	}
	return exists, nil
}

// GetOpenLot retrieves the open lot for a symbol
func (r *Repository) GetOpenLot(ctx context.Context, symbol string) (*Lot, error) {
	lot := &Lot{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, symbol, qty, price, created_at FROM active_lots WHERE symbol = $1`, symbol,
	).Scan(&lot.ID, &lot.Symbol, &lot.Qty, &lot.Price, &lot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoOpenLot
	}
	if err != nil {
		return nil, fmt.Errorf("fetching open lot for %s: %w", symbol, err)
	}
	return lot, nil
}

// OpenLot creates a new open lot. A second open lot for the same symbol is
// rejected by the unique constraint and reported as ErrDuplicateLot.
func (r *Repository) OpenLot(ctx context.Context, symbol string, qty, price float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO active_lots (symbol, qty, price) VALUES ($1, $2, $3)`,
		symbol, qty, price,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateLot
	}
	if err != nil {
		return fmt.Errorf("opening lot for %s: %w", symbol, err)
	}
	return nil
}

// CloseLot removes the open lot for a symbol and returns the removed row.
// Delete-with-returning keeps read and delete a single atomic statement, so
// two concurrent sells cannot both claim the same lot.
func (r *Repository) CloseLot(ctx context.Context, symbol string) (*Lot, error) {
	lot := &Lot{}
	err := r.db.Pool.QueryRow(ctx,
		`DELETE FROM active_lots WHERE symbol = $1 RETURNING id, symbol, qty, price, created_at`,
		symbol,
	).Scan(&lot.ID, &lot.Symbol, &lot.Qty, &lot.Price, &lot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoOpenLot
	}
	if err != nil {
		return nil, fmt.Errorf("closing lot for %s: %w", symbol, err)
	}
	return lot, nil
}

// CountOpenLots returns the number of open lots
func (r *Repository) CountOpenLots(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(id) FROM active_lots`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting open lots: %w", err)
	}
	return count, nil
}

// GetOpenLots retrieves all open lots
func (r *Repository) GetOpenLots(ctx context.Context) ([]*Lot, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, symbol, qty, price, created_at FROM active_lots ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("fetching open lots: %w", err)
	}
	defer rows.Close()

	var lots []*Lot
	for rows.Next() {
		lot := &Lot{}
		if err := rows.Scan(&lot.ID, &lot.Symbol, &lot.Qty, &lot.Price, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// ============================================================================
// HISTORY LOTS
// ============================================================================

// AppendHistory inserts one audit row for an executed trade. A failure here
// means the audit trail would lose an entry; callers treat it as fatal.
func (r *Repository) AppendHistory(ctx context.Context, action, symbol string, qty, price float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO history_lots (action, symbol, qty, price) VALUES ($1, $2, $3, $4)`,
		action, symbol, qty, price,
	)
	if err != nil {
		return fmt.Errorf("appending history for %s: %w", symbol, err)
	}
	return nil
}

// GetHistory retrieves executed trades, newest first, with pagination
func (r *Repository) GetHistory(ctx context.Context, limit, offset int) ([]*HistoryEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, action, symbol, qty, price, created_at
		 FROM history_lots ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry := &HistoryEntry{}
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Symbol, &entry.Qty, &entry.Price, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
