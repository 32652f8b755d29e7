package database

import "time"

// Lot represents an open position. At most one row exists per symbol,
// enforced by the UNIQUE constraint on active_lots.symbol.
type Lot struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is one row of the append-only trade audit trail
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"` // "buy" or "sell"
	Symbol    string    `json:"symbol"`
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// ControlState is the shared mutable trading control record
type ControlState struct {
	Enabled           bool      `json:"enabled"`
	PriceCeiling      float64   `json:"price_ceiling"`
	DeployableCapital float64   `json:"deployable_capital"`
	MaxOpenLots       int       `json:"max_open_lots"`
	UpdatedAt         time.Time `json:"updated_at"`
}
