package trader

import (
	"context"
	"errors"
	"testing"

	"bybit-signal-trader/internal/exchange"
	"bybit-signal-trader/internal/retry"

	"github.com/rs/zerolog"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Delay: 0}
}

func transientErr(msg string) error {
	return &exchange.TransientError{Err: errors.New(msg)}
}

func TestGatewayExecuteSuccess(t *testing.T) {
	mock := exchange.NewMockClient()
	gw := NewGateway(mock, 2, testPolicy(), zerolog.Nop())

	order, err := gw.Execute(context.Background(), "BTCUSDT", ActionBuy, 0.5)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if order.Qty != 0.5 || order.Side != "Buy" {
		t.Errorf("unexpected order %+v", order)
	}
	if mock.Leverage["BTCUSDT"] != 2 {
		t.Errorf("leverage = %d, want 2", mock.Leverage["BTCUSDT"])
	}
	if mock.OrderCount() != 1 {
		t.Errorf("order count = %d, want 1", mock.OrderCount())
	}
}

func TestGatewayRetriesTransientThenSucceeds(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.OrderErrs = []error{transientErr("timeout"), transientErr("reset")}
	gw := NewGateway(mock, 1, testPolicy(), zerolog.Nop())

	order, err := gw.Execute(context.Background(), "ETHUSDT", ActionSell, 1.25)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if order == nil {
		t.Fatal("expected order")
	}
	// Two failed attempts consumed, exactly one order placed
	if mock.OrderCount() != 1 {
		t.Errorf("order count = %d, want 1", mock.OrderCount())
	}
}

func TestGatewayExhaustsRetryBudget(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.OrderErrs = []error{transientErr("a"), transientErr("b"), transientErr("c")}
	gw := NewGateway(mock, 1, testPolicy(), zerolog.Nop())

	_, err := gw.Execute(context.Background(), "ETHUSDT", ActionBuy, 1)
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("Execute() error = %v, want ErrExecutionFailed", err)
	}
	if mock.OrderCount() != 0 {
		t.Errorf("order count = %d, want 0", mock.OrderCount())
	}
}

func TestGatewayFinalErrorNotRetried(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.OrderErrs = []error{&exchange.APIError{Code: 110007, Msg: "insufficient balance"}}
	gw := NewGateway(mock, 1, testPolicy(), zerolog.Nop())

	_, err := gw.Execute(context.Background(), "BTCUSDT", ActionBuy, 1)
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("Execute() error = %v, want ErrExecutionFailed", err)
	}
	// The final error must have been consumed on the first attempt only
	if len(mock.OrderErrs) != 0 {
		t.Errorf("remaining injected errors = %d, want 0", len(mock.OrderErrs))
	}
	if mock.OrderCount() != 0 {
		t.Errorf("order count = %d, want 0", mock.OrderCount())
	}
}

func TestGatewayLeverageFailureBlocksOrder(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.LeverageErrs = []error{transientErr("x"), transientErr("y"), transientErr("z")}
	gw := NewGateway(mock, 3, testPolicy(), zerolog.Nop())

	_, err := gw.Execute(context.Background(), "BTCUSDT", ActionBuy, 1)
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("Execute() error = %v, want ErrExecutionFailed", err)
	}
	if mock.OrderCount() != 0 {
		t.Error("no order may be placed when leverage cannot be set")
	}
}
