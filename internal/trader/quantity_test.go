package trader

import (
	"math"
	"testing"

	"bybit-signal-trader/internal/control"
	"bybit-signal-trader/internal/exchange"
)

func defaultLimits() *exchange.InstrumentLimits {
	return &exchange.InstrumentLimits{
		MinQty:      0.001,
		MaxQty:      100,
		QtyStep:     0.001,
		MinNotional: 5,
	}
}

func TestResolveQuantity(t *testing.T) {
	tests := []struct {
		name   string
		state  control.State
		limits *exchange.InstrumentLimits
		held   float64
		price  float64
		want   float64
	}{
		{
			name:   "even split across slots",
			state:  control.State{DeployableCapital: 1000, MaxOpenLots: 5},
			limits: defaultLimits(),
			price:  100,
			want:   2.0,
		},
		{
			name:   "held balance reduces the buy",
			state:  control.State{DeployableCapital: 1000, MaxOpenLots: 5},
			limits: defaultLimits(),
			held:   1.5,
			price:  100,
			want:   0.5,
		},
		{
			name:   "held balance covers the slice",
			state:  control.State{DeployableCapital: 1000, MaxOpenLots: 5},
			limits: defaultLimits(),
			held:   2.5,
			price:  100,
			want:   0,
		},
		{
			name:   "floors to step, never rounds up",
			state:  control.State{DeployableCapital: 100, MaxOpenLots: 3},
			limits: &exchange.InstrumentLimits{MinQty: 0.01, MaxQty: 100, QtyStep: 0.01, MinNotional: 5},
			price:  7,
			// 100/3/7 = 4.7619 -> 4.76
			want: 4.76,
		},
		{
			name:   "below min notional and min qty resolves to zero",
			state:  control.State{DeployableCapital: 10, MaxOpenLots: 5},
			limits: &exchange.InstrumentLimits{MinQty: 0.1, MaxQty: 100, QtyStep: 0.001, MinNotional: 5},
			price:  100,
			// 10/5/100 = 0.02: notional 2 < 5 and qty < 0.1
			want: 0,
		},
		{
			name:   "below min notional but above min qty survives",
			state:  control.State{DeployableCapital: 10, MaxOpenLots: 5},
			limits: &exchange.InstrumentLimits{MinQty: 0.01, MaxQty: 100, QtyStep: 0.001, MinNotional: 5},
			price:  100,
			want:   0.02,
		},
		{
			name:   "clamped to market order maximum",
			state:  control.State{DeployableCapital: 100000, MaxOpenLots: 1},
			limits: &exchange.InstrumentLimits{MinQty: 0.001, MaxQty: 50, QtyStep: 0.001, MinNotional: 5},
			price:  10,
			want:   50,
		},
		{
			name:   "zero price",
			state:  control.State{DeployableCapital: 1000, MaxOpenLots: 5},
			limits: defaultLimits(),
			price:  0,
			want:   0,
		},
		{
			name:   "zero capital",
			state:  control.State{DeployableCapital: 0, MaxOpenLots: 5},
			limits: defaultLimits(),
			price:  100,
			want:   0,
		},
		{
			name:   "zero slots",
			state:  control.State{DeployableCapital: 1000, MaxOpenLots: 0},
			limits: defaultLimits(),
			price:  100,
			want:   0,
		},
		{
			name:   "step division noise floors to exact step count",
			state:  control.State{DeployableCapital: 1000, MaxOpenLots: 5},
			limits: &exchange.InstrumentLimits{MinQty: 0.01, MaxQty: 1000, QtyStep: 0.01, MinNotional: 5},
			price:  100,
			// 2.0 / 0.01 must count as 200 steps, not 199
			want: 2.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveQuantity(&tt.state, tt.limits, tt.held, tt.price)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ResolveQuantity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveQuantityDeterministic(t *testing.T) {
	state := &control.State{DeployableCapital: 997.31, MaxOpenLots: 7}
	limits := &exchange.InstrumentLimits{MinQty: 0.001, MaxQty: 500, QtyStep: 0.001, MinNotional: 5}

	first := ResolveQuantity(state, limits, 0.042, 13.37)
	for i := 0; i < 100; i++ {
		if got := ResolveQuantity(state, limits, 0.042, 13.37); got != first {
			t.Fatalf("run %d: got %v, want %v", i, got, first)
		}
	}
}

func TestResolveQuantityNeverExceedsCapitalSlice(t *testing.T) {
	state := &control.State{DeployableCapital: 1000, MaxOpenLots: 3}
	limits := &exchange.InstrumentLimits{MinQty: 0.001, MaxQty: 10000, QtyStep: 0.001, MinNotional: 5}

	for _, price := range []float64{0.003, 1.7, 99.99, 12345.6} {
		qty := ResolveQuantity(state, limits, 0, price)
		slice := state.DeployableCapital / float64(state.MaxOpenLots)
		if qty*price > slice+1e-6 {
			t.Errorf("price %v: notional %v exceeds slice %v", price, qty*price, slice)
		}
	}
}
