package exchange

import (
	"errors"
	"fmt"
)

// InstrumentLimits holds the exchange's order constraints for one symbol.
// Fetched fresh per decision; exchanges change these without notice.
type InstrumentLimits struct {
	Symbol      string
	MinQty      float64
	MaxQty      float64
	QtyStep     float64
	MinNotional float64
}

// Order is the result of a placed market order
type Order struct {
	OrderID string
	Symbol  string
	Side    string
	Qty     float64
}

// ErrUnknownSymbol is returned when the exchange lists no such instrument
var ErrUnknownSymbol = errors.New("unknown symbol")

// TransientError wraps failures worth retrying: network errors and 5xx
// responses. Anything else from the exchange is treated as final.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient exchange error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks the error as retryable for the retry policy
func (e *TransientError) Transient() bool { return true }

// APIError is a non-retryable error response from the exchange
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit api error %d: %s", e.Code, e.Msg)
}

// Bybit v5 return code for "leverage not modified". Setting leverage to the
// value it already has is a success for our purposes.
const retCodeLeverageNotModified = 110043
