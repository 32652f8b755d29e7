package trader

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSignalUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Signal
		wantErr bool
	}{
		{
			name:  "rfc3339 timestamp",
			input: `{"symbol":"BTCUSDT","action":"buy","price":50000,"observed_at":"2026-08-25T10:00:00Z"}`,
			want: Signal{
				Symbol:     "BTCUSDT",
				Action:     ActionBuy,
				Price:      50000,
				ObservedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
			},
		},
		{
			name:  "zone-less timestamp read as UTC",
			input: `{"symbol":"ethusdt","action":"SELL","price":3000,"observed_at":"2026-08-25T10:00:00"}`,
			want: Signal{
				Symbol:     "ETHUSDT",
				Action:     ActionSell,
				Price:      3000,
				ObservedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
			},
		},
		{
			name:  "symbol and action normalized",
			input: `{"symbol":" solusdt ","action":" Buy ","price":150,"observed_at":"2026-08-25T10:00:00Z"}`,
			want: Signal{
				Symbol:     "SOLUSDT",
				Action:     ActionBuy,
				Price:      150,
				ObservedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
			},
		},
		{
			name:    "missing observed_at",
			input:   `{"symbol":"BTCUSDT","action":"buy","price":50000}`,
			wantErr: true,
		},
		{
			name:    "unparseable observed_at",
			input:   `{"symbol":"BTCUSDT","action":"buy","price":50000,"observed_at":"yesterday"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `buy BTCUSDT now`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sig Signal
			err := json.Unmarshal([]byte(tt.input), &sig)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sig.Symbol != tt.want.Symbol || sig.Action != tt.want.Action || sig.Price != tt.want.Price {
				t.Errorf("got %+v, want %+v", sig, tt.want)
			}
			if !sig.ObservedAt.Equal(tt.want.ObservedAt) {
				t.Errorf("ObservedAt = %v, want %v", sig.ObservedAt, tt.want.ObservedAt)
			}
		})
	}
}

func TestActionValid(t *testing.T) {
	if !ActionBuy.Valid() || !ActionSell.Valid() {
		t.Error("buy and sell must be valid")
	}
	if Action("hold").Valid() {
		t.Error("hold must not be valid")
	}
	if got := ActionBuy.OrderSide(); got != "Buy" {
		t.Errorf("OrderSide() = %q, want Buy", got)
	}
	if got := ActionSell.OrderSide(); got != "Sell" {
		t.Errorf("OrderSide() = %q, want Sell", got)
	}
}
