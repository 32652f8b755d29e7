package exchange

import "context"

// Exchange is the surface of the Bybit REST API this service uses.
// Client implements it against the real API, MockClient in tests.
type Exchange interface {
	// InstrumentLimits resolves the quantity bounds, step size and minimum
	// notional for a symbol. Returns ErrUnknownSymbol when the exchange has
	// no such instrument.
	InstrumentLimits(ctx context.Context, symbol string) (*InstrumentLimits, error)

	// WalletBalance returns the account's USDT balance
	WalletBalance(ctx context.Context) (float64, error)

	// CoinBalance returns the held balance of the symbol's base coin,
	// zero when the coin is not present in the account
	CoinBalance(ctx context.Context, symbol string) (float64, error)

	// SetLeverage sets buy and sell leverage for a symbol. "Leverage already
	// at requested value" is success.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder places a market order. side is "Buy" or "Sell".
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*Order, error)
}
