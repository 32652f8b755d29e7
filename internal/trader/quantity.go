package trader

import (
	"math"

	"bybit-signal-trader/internal/control"
	"bybit-signal-trader/internal/exchange"
)

// stepEpsilon absorbs float division noise before flooring to a step
// multiple, so 2.0 capital-per-slot at step 0.01 resolves to exactly 200
// steps rather than 199.
const stepEpsilon = 1e-9

// ResolveQuantity computes a conforming buy quantity from the control state,
// the instrument limits, the already-held base coin balance and the signal
// price. A result of zero means the trade should be skipped; it is never an
// error. The function is pure: identical inputs always produce identical
// output.
//
// The sizing rule divides deployable capital evenly across slots, converts to
// base quantity at the signal price, subtracts inventory the account already
// holds, floors to the exchange step size (rounding up could exceed the
// capital slice), zeroes quantities the exchange would refuse, and clamps to
// the market order maximum.
func ResolveQuantity(state *control.State, limits *exchange.InstrumentLimits, heldBalance, price float64) float64 {
	if price <= 0 || state.MaxOpenLots <= 0 || state.DeployableCapital <= 0 {
		return 0
	}

	qty := state.DeployableCapital / float64(state.MaxOpenLots) / price

	qty -= heldBalance
	if qty <= 0 {
		return 0
	}

	if limits.QtyStep > 0 {
		qty = math.Floor(qty/limits.QtyStep+stepEpsilon) * limits.QtyStep
	}

	if qty*price < limits.MinNotional && qty < limits.MinQty {
		return 0
	}
	if limits.MaxQty > 0 && qty > limits.MaxQty {
		qty = limits.MaxQty
	}
	return qty
}
