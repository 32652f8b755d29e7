package database

import (
	"context"
	"fmt"
)

// Control state lives in a single row updated in place. Each setter is one
// row-level UPDATE, so the database is the single writer and last-write-wins
// holds without any in-process locking.

// GetControlState reads the current control state row
func (r *Repository) GetControlState(ctx context.Context) (*ControlState, error) {
	state := &ControlState{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT enabled, price_ceiling, deployable_capital, max_open_lots, updated_at
		 FROM control_state WHERE id = 1`,
	).Scan(&state.Enabled, &state.PriceCeiling, &state.DeployableCapital, &state.MaxOpenLots, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching control state: %w", err)
	}
	return state, nil
}

// SetEnabled updates the system-enabled flag
func (r *Repository) SetEnabled(ctx context.Context, enabled bool) error {
	return r.updateControl(ctx, "enabled", enabled)
}

// SetPriceCeiling updates the maximum buy price
func (r *Repository) SetPriceCeiling(ctx context.Context, ceiling float64) error {
	return r.updateControl(ctx, "price_ceiling", ceiling)
}

// SetDeployableCapital updates the capital pool divided across lots
func (r *Repository) SetDeployableCapital(ctx context.Context, capital float64) error {
	return r.updateControl(ctx, "deployable_capital", capital)
}

// SetMaxOpenLots updates the slot count
func (r *Repository) SetMaxOpenLots(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("max_open_lots must be at least 1, got %d", n)
	}
	return r.updateControl(ctx, "max_open_lots", n)
}

func (r *Repository) updateControl(ctx context.Context, column string, value interface{}) error {
	// column names come from the fixed setter set above, never from input
	query := fmt.Sprintf(
		`UPDATE control_state SET %s = $1, updated_at = CURRENT_TIMESTAMP WHERE id = 1`, column)
	_, err := r.db.Pool.Exec(ctx, query, value)
	if err != nil {
		return fmt.Errorf("updating control state %s: %w", column, err)
	}
	return nil
}
