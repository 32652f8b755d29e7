package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bybit-signal-trader/config"
	"bybit-signal-trader/internal/auth"
	"bybit-signal-trader/internal/database"
	"bybit-signal-trader/internal/events"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ============================================================================
// FAKES
// ============================================================================

type fakeControls struct {
	state    database.ControlState
	err      error
	setCalls map[string]interface{}
}

func newFakeControls() *fakeControls {
	return &fakeControls{
		state: database.ControlState{
			Enabled:           true,
			PriceCeiling:      60000,
			DeployableCapital: 1000,
			MaxOpenLots:       5,
			UpdatedAt:         time.Now(),
		},
		setCalls: make(map[string]interface{}),
	}
}

func (f *fakeControls) GetControlState(ctx context.Context) (*database.ControlState, error) {
	if f.err != nil {
		return nil, f.err
	}
	copied := f.state
	return &copied, nil
}

func (f *fakeControls) SetEnabled(ctx context.Context, enabled bool) error {
	f.setCalls["enabled"] = enabled
	f.state.Enabled = enabled
	return f.err
}

func (f *fakeControls) SetPriceCeiling(ctx context.Context, ceiling float64) error {
	f.setCalls["price_ceiling"] = ceiling
	f.state.PriceCeiling = ceiling
	return f.err
}

func (f *fakeControls) SetDeployableCapital(ctx context.Context, capital float64) error {
	f.setCalls["deployable_capital"] = capital
	f.state.DeployableCapital = capital
	return f.err
}

func (f *fakeControls) SetMaxOpenLots(ctx context.Context, n int) error {
	f.setCalls["max_open_lots"] = n
	f.state.MaxOpenLots = n
	return f.err
}

type fakeLots struct {
	lots    []*database.Lot
	history []*database.HistoryEntry
	err     error
}

func (f *fakeLots) GetOpenLots(ctx context.Context) ([]*database.Lot, error) {
	return f.lots, f.err
}

func (f *fakeLots) CountOpenLots(ctx context.Context) (int, error) {
	return len(f.lots), f.err
}

func (f *fakeLots) GetHistory(ctx context.Context, limit, offset int) ([]*database.HistoryEntry, error) {
	return f.history, f.err
}

func (f *fakeLots) HealthCheck(ctx context.Context) error {
	return f.err
}

// ============================================================================
// HARNESS
// ============================================================================

const testToken = "sekrit"

func newTestServer(controls ControlStore, lots LotStore) *Server {
	authService := auth.NewService(testToken, "jwt-secret", "", time.Hour)
	return NewServer(
		config.ServerConfig{ProductionMode: true},
		controls, lots,
		events.NewEventBus(),
		authService,
	)
}

func doRequest(s *Server, method, path string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// AUTH
// ============================================================================

func TestGuardedEndpointsRejectMissingToken(t *testing.T) {
	s := newTestServer(newFakeControls(), &fakeLots{})

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/get_control_state"},
		{"GET", "/get_system_status"},
		{"GET", "/get_fake_balance"},
		{"POST", "/set_fake_balance/100"},
		{"GET", "/api/lots"},
		{"GET", "/api/history"},
	}
	for _, p := range paths {
		w := doRequest(s, p.method, p.path, "")
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", p.method, p.path, w.Code)
		}
	}
}

func TestGuardedEndpointRejectsWrongToken(t *testing.T) {
	s := newTestServer(newFakeControls(), &fakeLots{})
	w := doRequest(s, "GET", "/get_control_state?api_key=wrong", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(newFakeControls(), &fakeLots{})
	w := doRequest(s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHealthReportsDatabaseFault(t *testing.T) {
	s := newTestServer(newFakeControls(), &fakeLots{err: errors.New("pool closed")})
	w := doRequest(s, "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ============================================================================
// CONTROL STATE
// ============================================================================

func TestGetControlStateFlatBody(t *testing.T) {
	s := newTestServer(newFakeControls(), &fakeLots{})
	w := doRequest(s, "GET", "/get_control_state?api_key="+testToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// The trader's control client parses this body directly
	var state struct {
		Enabled           bool    `json:"enabled"`
		PriceCeiling      float64 `json:"price_ceiling"`
		DeployableCapital float64 `json:"deployable_capital"`
		MaxOpenLots       int     `json:"max_open_lots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("body is not a flat state object: %v", err)
	}
	if !state.Enabled || state.DeployableCapital != 1000 || state.MaxOpenLots != 5 {
		t.Errorf("state = %+v", state)
	}
}

func TestSetFakeBalanceRoundTrip(t *testing.T) {
	controls := newFakeControls()
	s := newTestServer(controls, &fakeLots{})

	w := doRequest(s, "POST", "/set_fake_balance/1120.5?api_key="+testToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := controls.setCalls["deployable_capital"]; got != 1120.5 {
		t.Errorf("deployable_capital = %v, want 1120.5", got)
	}

	w = doRequest(s, "GET", "/get_fake_balance?api_key="+testToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "1120.5") {
		t.Errorf("body = %s, want fake_balance 1120.5", w.Body.String())
	}
}

func TestSetFakeBalanceRejectsGarbage(t *testing.T) {
	controls := newFakeControls()
	s := newTestServer(controls, &fakeLots{})

	for _, value := range []string{"abc", "-5"} {
		w := doRequest(s, "POST", "/set_fake_balance/"+value+"?api_key="+testToken, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("value %q: status = %d, want 400", value, w.Code)
		}
	}
	if len(controls.setCalls) != 0 {
		t.Errorf("invalid values must not reach the store: %v", controls.setCalls)
	}
}

func TestSetSystemStatus(t *testing.T) {
	controls := newFakeControls()
	s := newTestServer(controls, &fakeLots{})

	w := doRequest(s, "POST", "/set_system_status/false?api_key="+testToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := controls.setCalls["enabled"]; got != false {
		t.Errorf("enabled = %v, want false", got)
	}

	w = doRequest(s, "POST", "/set_system_status/maybe?api_key="+testToken, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSetMaxNumLotsRejectsZero(t *testing.T) {
	controls := newFakeControls()
	s := newTestServer(controls, &fakeLots{})

	w := doRequest(s, "POST", "/set_max_num_lots/0?api_key="+testToken, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(controls.setCalls) != 0 {
		t.Error("zero lots must not reach the store")
	}
}

func TestGetNumAvailableLots(t *testing.T) {
	lots := &fakeLots{lots: []*database.Lot{
		{ID: 1, Symbol: "BTCUSDT"},
		{ID: 2, Symbol: "ETHUSDT"},
	}}
	s := newTestServer(newFakeControls(), lots)

	w := doRequest(s, "GET", "/get_num_available_lots?api_key="+testToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	// 5 slots, 2 open
	if !strings.Contains(w.Body.String(), `"num_available_lots":3`) {
		t.Errorf("body = %s, want num_available_lots 3", w.Body.String())
	}
}

// ============================================================================
// LEDGER READS AND LOGIN
// ============================================================================

func TestGetLots(t *testing.T) {
	lots := &fakeLots{lots: []*database.Lot{{ID: 1, Symbol: "BTCUSDT", Qty: 2, Price: 100}}}
	s := newTestServer(newFakeControls(), lots)

	w := doRequest(s, "GET", "/api/lots?api_key="+testToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "BTCUSDT") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestLoginIssuesUsableJWT(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	authService := auth.NewService(testToken, "jwt-secret", hash, time.Hour)
	s := NewServer(config.ServerConfig{ProductionMode: true},
		newFakeControls(), &fakeLots{}, events.NewEventBus(), authService)

	w := doRequest(s, "POST", "/api/auth/login", `{"password":"hunter2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Data.Token == "" {
		t.Fatalf("no token in response: %s", w.Body.String())
	}

	// The JWT works as a bearer credential on guarded endpoints
	req := httptest.NewRequest("GET", "/get_control_state", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Data.Token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer request status = %d, want 200", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	hash, _ := auth.HashPassword("hunter2")
	authService := auth.NewService(testToken, "jwt-secret", hash, time.Hour)
	s := NewServer(config.ServerConfig{ProductionMode: true},
		newFakeControls(), &fakeLots{}, events.NewEventBus(), authService)

	w := doRequest(s, "POST", "/api/auth/login", `{"password":"guess"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
