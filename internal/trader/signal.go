package trader

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action is the side of a trading signal
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// OrderSide returns the side string the exchange expects
func (a Action) OrderSide() string {
	if a == ActionBuy {
		return "Buy"
	}
	return "Sell"
}

// Valid reports whether the action is one of the known sides
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Signal is one parsed trading signal delivered from the queue.
// It lives for exactly one decision cycle.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// signalJSON mirrors Signal with a string timestamp so both RFC3339 and the
// upstream parser's zone-less format can be accepted.
type signalJSON struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Price      float64 `json:"price"`
	ObservedAt string  `json:"observed_at"`
}

// UnmarshalJSON decodes a signal, accepting observed_at with or without a
// timezone offset. Zone-less timestamps are read as UTC.
func (s *Signal) UnmarshalJSON(data []byte) error {
	var raw signalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Symbol = strings.ToUpper(strings.TrimSpace(raw.Symbol))
	s.Action = Action(strings.ToLower(strings.TrimSpace(raw.Action)))
	s.Price = raw.Price

	if raw.ObservedAt == "" {
		return fmt.Errorf("signal missing observed_at")
	}
	t, err := time.Parse(time.RFC3339, raw.ObservedAt)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", raw.ObservedAt)
		if err != nil {
			return fmt.Errorf("unparseable observed_at %q", raw.ObservedAt)
		}
		t = t.UTC()
	}
	s.ObservedAt = t
	return nil
}

func (s *Signal) String() string {
	return fmt.Sprintf("%s %s @ %g", s.Action, s.Symbol, s.Price)
}
