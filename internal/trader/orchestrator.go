package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bybit-signal-trader/internal/control"
	"bybit-signal-trader/internal/database"
	"bybit-signal-trader/internal/events"
	"bybit-signal-trader/internal/exchange"
	"bybit-signal-trader/internal/metrics"
	"bybit-signal-trader/internal/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Phase names the state machine step at which a decision terminated
type Phase string

const (
	PhaseValidating        Phase = "validating"
	PhaseCheckingControl   Phase = "checking_control"
	PhaseCheckingLedger    Phase = "checking_ledger"
	PhaseResolvingQuantity Phase = "resolving_quantity"
	PhaseExecuting         Phase = "executing"
	PhaseUpdatingLedger    Phase = "updating_ledger"
	PhaseDone              Phase = "done"
)

// Outcome is the terminal result of a decision
type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeRejected Outcome = "rejected"
)

// Result describes how a signal decision terminated
type Result struct {
	DecisionID string
	Outcome    Outcome
	Phase      Phase
	Reason     string
	Order      *exchange.Order
}

// ControlService is the control-plane surface the orchestrator needs
type ControlService interface {
	State(ctx context.Context) (*control.State, error)
	SetDeployableCapital(ctx context.Context, capital float64) error
}

// Ledger is the durable position store surface the orchestrator needs.
// database.Repository implements it.
type Ledger interface {
	HasOpenLot(ctx context.Context, symbol string) (bool, error)
	GetOpenLot(ctx context.Context, symbol string) (*database.Lot, error)
	OpenLot(ctx context.Context, symbol string, qty, price float64) error
	CloseLot(ctx context.Context, symbol string) (*database.Lot, error)
	CountOpenLots(ctx context.Context) (int, error)
	AppendHistory(ctx context.Context, action, symbol string, qty, price float64) error
}

// Executor places orders; Gateway implements it
type Executor interface {
	Execute(ctx context.Context, symbol string, action Action, qty float64) (*exchange.Order, error)
}

// Config holds the orchestrator's decision parameters
type Config struct {
	BuyStaleAfter  time.Duration
	SellStaleAfter time.Duration
	LookupPolicy   retry.Policy // retries for read-only exchange lookups
}

// Orchestrator sequences one decision per signal: gates, sizing, execution
// and ledger settlement. It is safe for a single consumer; concurrent buys
// for one symbol are serialized by the ledger's uniqueness constraint, not
// by anything in this struct.
type Orchestrator struct {
	cfg      Config
	controls ControlService
	ledger   Ledger
	exchange exchange.Exchange
	executor Executor
	bus      *events.EventBus
	logger   zerolog.Logger
	now      func() time.Time
}

// NewOrchestrator wires a signal orchestrator
func NewOrchestrator(
	cfg Config,
	controls ControlService,
	ledger Ledger,
	ex exchange.Exchange,
	executor Executor,
	bus *events.EventBus,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.BuyStaleAfter <= 0 {
		cfg.BuyStaleAfter = 30 * time.Minute
	}
	if cfg.SellStaleAfter <= 0 {
		cfg.SellStaleAfter = 24 * time.Hour
	}
	return &Orchestrator{
		cfg:      cfg,
		controls: controls,
		ledger:   ledger,
		exchange: ex,
		executor: executor,
		bus:      bus,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
}

// Process runs one signal through the decision state machine. The returned
// error is non-nil only for storage faults that must not be acknowledged;
// Skipped and Rejected are normal terminal results.
func (o *Orchestrator) Process(ctx context.Context, sig *Signal) (*Result, error) {
	decisionID := uuid.NewString()
	logger := o.logger.With().
		Str("decision_id", decisionID).
		Str("symbol", sig.Symbol).
		Str("action", string(sig.Action)).
		Logger()

	// Validating: no network calls happen before this gate passes, so a
	// stale signal costs nothing.
	if reason := o.validate(sig); reason != "" {
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseValidating, Reason: reason}), nil
	}

	// CheckingControl: an unreachable control plane rejects the decision.
	// Guessing "enabled" here could trade against an operator's stop.
	state, err := o.controls.State(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("control state fetch failed")
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseCheckingControl, Reason: "control state unavailable"}), nil
	}
	if !state.Enabled {
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeSkipped, Phase: PhaseCheckingControl, Reason: "trading disabled"}), nil
	}

	switch sig.Action {
	case ActionBuy:
		return o.processBuy(ctx, logger, decisionID, sig, state)
	case ActionSell:
		return o.processSell(ctx, logger, decisionID, sig, state)
	}
	// unreachable: validate rejects unknown actions
	return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseValidating, Reason: "unknown action"}), nil
}

func (o *Orchestrator) validate(sig *Signal) string {
	if sig.Symbol == "" {
		return "missing symbol"
	}
	if !sig.Action.Valid() {
		return fmt.Sprintf("invalid action %q", sig.Action)
	}
	if sig.Price <= 0 {
		return fmt.Sprintf("non-positive price %g", sig.Price)
	}
	if sig.ObservedAt.IsZero() {
		return "missing observation time"
	}

	age := o.now().Sub(sig.ObservedAt)
	if sig.Action == ActionBuy && age > o.cfg.BuyStaleAfter {
		return fmt.Sprintf("buy signal stale: observed %s ago", age.Round(time.Second))
	}
	if sig.Action == ActionSell && age > o.cfg.SellStaleAfter {
		return fmt.Sprintf("sell signal stale: observed %s ago", age.Round(time.Second))
	}
	return ""
}

func (o *Orchestrator) processBuy(ctx context.Context, logger zerolog.Logger, decisionID string, sig *Signal, state *control.State) (*Result, error) {
	// A zero ceiling skips every buy; raising it is an operator action
	if sig.Price > state.PriceCeiling {
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeSkipped, Phase: PhaseCheckingControl,
			Reason: fmt.Sprintf("price %g above ceiling %g", sig.Price, state.PriceCeiling)}), nil
	}

	// CheckingLedger
	openCount, err := o.ledger.CountOpenLots(ctx)
	if err != nil {
		return nil, err
	}
	if openCount >= state.MaxOpenLots {
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeSkipped, Phase: PhaseCheckingLedger,
			Reason: fmt.Sprintf("all %d lot slots in use", state.MaxOpenLots)}), nil
	}
	hasLot, err := o.ledger.HasOpenLot(ctx, sig.Symbol)
	if err != nil {
		return nil, err
	}
	if hasLot {
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeSkipped, Phase: PhaseCheckingLedger, Reason: "lot already open"}), nil
	}

	// ResolvingQuantity
	var limits *exchange.InstrumentLimits
	err = o.cfg.LookupPolicy.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		limits, lookupErr = o.exchange.InstrumentLimits(ctx, sig.Symbol)
		return lookupErr
	})
	if errors.Is(err, exchange.ErrUnknownSymbol) {
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseResolvingQuantity, Reason: "unknown symbol"}), nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("instrument limits lookup failed")
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseResolvingQuantity, Reason: "instrument lookup failed"}), nil
	}

	var held float64
	err = o.cfg.LookupPolicy.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		held, lookupErr = o.exchange.CoinBalance(ctx, sig.Symbol)
		return lookupErr
	})
	if err != nil {
		logger.Error().Err(err).Msg("coin balance lookup failed")
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseResolvingQuantity, Reason: "balance lookup failed"}), nil
	}

	qty := ResolveQuantity(state, limits, held, sig.Price)
	if qty == 0 {
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeSkipped, Phase: PhaseResolvingQuantity, Reason: "quantity below exchange minimum"}), nil
	}

	// Executing
	order, err := o.executor.Execute(ctx, sig.Symbol, ActionBuy, qty)
	if err != nil {
		logger.Error().Err(err).Msg("buy execution failed")
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseExecuting, Reason: "execution failed"}), nil
	}

	// UpdatingLedger
	if err := o.ledger.OpenLot(ctx, sig.Symbol, qty, sig.Price); err != nil {
		if errors.Is(err, database.ErrDuplicateLot) {
			// A concurrent decision won the slot between our existence check
			// and the insert. The constraint is the arbiter; this decision
			// loses and must leave the ledger untouched.
			logger.Error().Float64("qty", qty).Msg("lot already recorded by concurrent decision, order executed without ledger entry")
			return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseUpdatingLedger, Reason: "concurrent buy already holds the lot"}), nil
		}
		return nil, err
	}
	if err := o.ledger.AppendHistory(ctx, string(ActionBuy), sig.Symbol, qty, sig.Price); err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues("buy").Inc()
	o.bus.Publish(events.Event{Type: events.EventTradeExecuted, Data: map[string]interface{}{
		"decision_id": decisionID,
		"symbol":      sig.Symbol,
		"side":        "buy",
		"qty":         qty,
		"price":       sig.Price,
		"order_id":    order.OrderID,
	}})
	return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeDone, Phase: PhaseDone, Order: order}), nil
}

func (o *Orchestrator) processSell(ctx context.Context, logger zerolog.Logger, decisionID string, sig *Signal, state *control.State) (*Result, error) {
	// CheckingLedger: the recorded lot is also the sell quantity
	lot, err := o.ledger.GetOpenLot(ctx, sig.Symbol)
	if errors.Is(err, database.ErrNoOpenLot) {
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeSkipped, Phase: PhaseCheckingLedger, Reason: "no open lot"}), nil
	}
	if err != nil {
		return nil, err
	}

	// The realized delta needs the balance before the order settles
	var balanceBefore float64
	err = o.cfg.LookupPolicy.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		balanceBefore, lookupErr = o.exchange.WalletBalance(ctx)
		return lookupErr
	})
	if err != nil {
		logger.Error().Err(err).Msg("wallet balance lookup failed")
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseResolvingQuantity, Reason: "balance lookup failed"}), nil
	}

	// Executing
	order, err := o.executor.Execute(ctx, sig.Symbol, ActionSell, lot.Qty)
	if err != nil {
		logger.Error().Err(err).Msg("sell execution failed")
		return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseExecuting, Reason: "execution failed"}), nil
	}

	// UpdatingLedger
	closed, err := o.ledger.CloseLot(ctx, sig.Symbol)
	if err != nil {
		if errors.Is(err, database.ErrNoOpenLot) {
			logger.Error().Msg("lot vanished before close, order executed without ledger entry")
			return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeRejected, Phase: PhaseUpdatingLedger, Reason: "concurrent sell already closed the lot"}), nil
		}
		return nil, err
	}
	if err := o.ledger.AppendHistory(ctx, string(ActionSell), sig.Symbol, closed.Qty, sig.Price); err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues("sell").Inc()
	o.bus.Publish(events.Event{Type: events.EventTradeExecuted, Data: map[string]interface{}{
		"decision_id": decisionID,
		"symbol":      sig.Symbol,
		"side":        "sell",
		"qty":         closed.Qty,
		"price":       sig.Price,
		"order_id":    order.OrderID,
	}})

	o.settleCapital(ctx, logger, decisionID, balanceBefore)

	return o.finish(logger, sig, &Result{DecisionID: decisionID, Outcome: OutcomeDone, Phase: PhaseDone, Order: order}), nil
}

// settleCapital applies the realized balance delta of a completed sell to
// the shared deployable capital figure. The ledger is already consistent at
// this point; a failure here is logged and alerted but does not undo the
// trade.
func (o *Orchestrator) settleCapital(ctx context.Context, logger zerolog.Logger, decisionID string, balanceBefore float64) {
	var balanceAfter float64
	err := o.cfg.LookupPolicy.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		balanceAfter, lookupErr = o.exchange.WalletBalance(ctx)
		return lookupErr
	})
	if err != nil {
		logger.Error().Err(err).Msg("post-sell balance lookup failed, deployable capital not updated")
		o.bus.Publish(events.Event{Type: events.EventError, Data: map[string]interface{}{
			"decision_id": decisionID, "error": "capital settlement failed: " + err.Error(),
		}})
		return
	}

	delta := balanceAfter - balanceBefore

	// Fresh read: the operator may have moved the figure mid-decision, and
	// the store offers no read-modify-write transaction across HTTP.
	state, err := o.controls.State(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("control state fetch failed, deployable capital not updated")
		return
	}
	newCapital := state.DeployableCapital + delta
	if err := o.controls.SetDeployableCapital(ctx, newCapital); err != nil {
		logger.Error().Err(err).Float64("delta", delta).Msg("deployable capital write failed")
		o.bus.Publish(events.Event{Type: events.EventError, Data: map[string]interface{}{
			"decision_id": decisionID, "error": "capital write failed: " + err.Error(),
		}})
		return
	}

	metrics.CapitalGauge.Set(newCapital)
	o.bus.Publish(events.Event{Type: events.EventCapitalUpdated, Data: map[string]interface{}{
		"decision_id": decisionID,
		"delta":       delta,
		"capital":     newCapital,
	}})
	logger.Info().Float64("delta", delta).Float64("capital", newCapital).Msg("deployable capital settled")
}

// finish logs the terminal outcome, publishes it and counts it
func (o *Orchestrator) finish(logger zerolog.Logger, sig *Signal, res *Result) *Result {
	var event *zerolog.Event
	if res.Outcome == OutcomeRejected {
		event = logger.Warn()
	} else {
		event = logger.Info()
	}
	event.
		Str("outcome", string(res.Outcome)).
		Str("phase", string(res.Phase)).
		Str("reason", res.Reason).
		Float64("price", sig.Price).
		Msg("decision finished")

	metrics.DecisionsTotal.WithLabelValues(string(res.Outcome)).Inc()

	eventType := events.EventDecisionDone
	switch res.Outcome {
	case OutcomeSkipped:
		eventType = events.EventDecisionSkipped
	case OutcomeRejected:
		eventType = events.EventDecisionRejected
	}
	o.bus.Publish(events.Event{Type: eventType, Data: map[string]interface{}{
		"decision_id": res.DecisionID,
		"symbol":      sig.Symbol,
		"action":      string(sig.Action),
		"phase":       string(res.Phase),
		"reason":      res.Reason,
	}})
	return res
}
