package trader

import (
	"context"
	"errors"
	"fmt"

	"bybit-signal-trader/internal/exchange"
	"bybit-signal-trader/internal/metrics"
	"bybit-signal-trader/internal/retry"

	"github.com/rs/zerolog"
)

// ErrExecutionFailed is returned once the retry budget is exhausted or the
// exchange answers with a final error. The orchestrator must not mutate the
// ledger after seeing it.
var ErrExecutionFailed = errors.New("order execution failed")

// Gateway places orders on the exchange with bounded retries. Leverage is
// set before every order; the exchange treating "already set" as an error is
// absorbed by the client, so the precondition is idempotent.
type Gateway struct {
	exchange exchange.Exchange
	leverage int
	policy   retry.Policy
	logger   zerolog.Logger
}

// NewGateway creates an execution gateway
func NewGateway(ex exchange.Exchange, leverage int, policy retry.Policy, logger zerolog.Logger) *Gateway {
	return &Gateway{
		exchange: ex,
		leverage: leverage,
		policy:   policy,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// Execute sets leverage and places a market order. Transient failures are
// retried up to the policy budget with a fixed delay; the final failure is
// wrapped in ErrExecutionFailed.
func (g *Gateway) Execute(ctx context.Context, symbol string, action Action, qty float64) (*exchange.Order, error) {
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		return g.exchange.SetLeverage(ctx, symbol, g.leverage)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: set leverage for %s: %v", ErrExecutionFailed, symbol, err)
	}

	var order *exchange.Order
	attempt := 0
	err = g.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.OrderRetriesTotal.Inc()
			g.logger.Warn().Str("symbol", symbol).Int("attempt", attempt).Msg("retrying order placement")
		}
		var placeErr error
		order, placeErr = g.exchange.PlaceMarketOrder(ctx, symbol, action.OrderSide(), qty)
		return placeErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: place order for %s: %v", ErrExecutionFailed, symbol, err)
	}

	g.logger.Info().
		Str("symbol", symbol).
		Str("side", action.OrderSide()).
		Float64("qty", qty).
		Str("order_id", order.OrderID).
		Msg("order executed")
	return order, nil
}
