package exchange

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory Exchange for tests and dry runs. Balances and
// limits are seeded by the caller; orders mutate coin balances so scripted
// scenarios see a consistent account.
type MockClient struct {
	mu sync.Mutex

	Limits       map[string]*InstrumentLimits
	USDTBalance  float64
	CoinBalances map[string]float64 // base coin -> balance
	Leverage     map[string]int

	// Error injection. Each entry is consumed once per call, in order.
	LimitsErrs   []error
	LeverageErrs []error
	OrderErrs    []error
	BalanceErrs  []error

	PlacedOrders []Order
	nextOrderID  int
}

// NewMockClient creates a mock exchange with empty state
func NewMockClient() *MockClient {
	return &MockClient{
		Limits:       make(map[string]*InstrumentLimits),
		CoinBalances: make(map[string]float64),
		Leverage:     make(map[string]int),
	}
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (m *MockClient) InstrumentLimits(ctx context.Context, symbol string) (*InstrumentLimits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := popErr(&m.LimitsErrs); err != nil {
		return nil, err
	}
	limits, ok := m.Limits[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	copied := *limits
	return &copied, nil
}

func (m *MockClient) WalletBalance(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := popErr(&m.BalanceErrs); err != nil {
		return 0, err
	}
	return m.USDTBalance, nil
}

func (m *MockClient) CoinBalance(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := popErr(&m.BalanceErrs); err != nil {
		return 0, err
	}
	coin := baseCoin(symbol)
	return m.CoinBalances[coin], nil
}

func (m *MockClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := popErr(&m.LeverageErrs); err != nil {
		return err
	}
	m.Leverage[symbol] = leverage
	return nil
}

func (m *MockClient) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := popErr(&m.OrderErrs); err != nil {
		return nil, err
	}

	m.nextOrderID++
	order := Order{
		OrderID: fmt.Sprintf("mock-%d", m.nextOrderID),
		Symbol:  symbol,
		Side:    side,
		Qty:     qty,
	}
	m.PlacedOrders = append(m.PlacedOrders, order)

	coin := baseCoin(symbol)
	if side == "Buy" {
		m.CoinBalances[coin] += qty
	} else {
		m.CoinBalances[coin] -= qty
	}
	return &order, nil
}

// OrderCount returns the number of orders placed so far
func (m *MockClient) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PlacedOrders)
}

// SetUSDTBalance replaces the mock account balance
func (m *MockClient) SetUSDTBalance(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.USDTBalance = v
}

func baseCoin(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return symbol[:len(symbol)-4]
	}
	return symbol
}
