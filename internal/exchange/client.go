package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const demoBaseURL = "https://api-demo.bybit.com"

// Client talks to the Bybit v5 REST API
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	recvWindow string
	httpClient *http.Client
}

// NewClient creates a new Bybit client. When demoMode is set the demo
// endpoint is used regardless of baseURL.
func NewClient(apiKey, secretKey, baseURL string, recvWindowMs int, demoMode bool) *Client {
	if demoMode {
		baseURL = demoBaseURL
	}
	if recvWindowMs <= 0 {
		recvWindowMs = 5000
	}
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		recvWindow: strconv.Itoa(recvWindowMs),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// envelope is the common Bybit v5 response wrapper
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type instrumentsResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		LotSizeFilter struct {
			MaxMktOrderQty   string `json:"maxMktOrderQty"`
			MinOrderQty      string `json:"minOrderQty"`
			QtyStep          string `json:"qtyStep"`
			MinNotionalValue string `json:"minNotionalValue"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

type walletResult struct {
	List []struct {
		Coin []struct {
			Coin          string `json:"coin"`
			WalletBalance string `json:"walletBalance"`
		} `json:"coin"`
	} `json:"list"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// InstrumentLimits fetches the lot size filter for a linear instrument
func (c *Client) InstrumentLimits(ctx context.Context, symbol string) (*InstrumentLimits, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)

	var result instrumentsResult
	if err := c.get(ctx, "/v5/market/instruments-info", params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	filter := result.List[0].LotSizeFilter
	limits := &InstrumentLimits{Symbol: symbol}
	var err error
	if limits.MaxQty, err = strconv.ParseFloat(filter.MaxMktOrderQty, 64); err != nil {
		return nil, fmt.Errorf("parsing maxMktOrderQty %q: %w", filter.MaxMktOrderQty, err)
	}
	if limits.MinQty, err = strconv.ParseFloat(filter.MinOrderQty, 64); err != nil {
		return nil, fmt.Errorf("parsing minOrderQty %q: %w", filter.MinOrderQty, err)
	}
	if limits.QtyStep, err = strconv.ParseFloat(filter.QtyStep, 64); err != nil {
		return nil, fmt.Errorf("parsing qtyStep %q: %w", filter.QtyStep, err)
	}
	if limits.MinNotional, err = strconv.ParseFloat(filter.MinNotionalValue, 64); err != nil {
		return nil, fmt.Errorf("parsing minNotionalValue %q: %w", filter.MinNotionalValue, err)
	}
	return limits, nil
}

// WalletBalance returns the unified account USDT balance
func (c *Client) WalletBalance(ctx context.Context) (float64, error) {
	return c.coinBalance(ctx, "USDT")
}

// CoinBalance returns the held balance of the symbol's base coin.
// A coin absent from the account reads as zero.
func (c *Client) CoinBalance(ctx context.Context, symbol string) (float64, error) {
	coin := strings.TrimSuffix(symbol, "USDT")
	if coin == "" || coin == symbol {
		return 0, fmt.Errorf("cannot derive base coin from symbol %q", symbol)
	}
	return c.coinBalance(ctx, coin)
}

func (c *Client) coinBalance(ctx context.Context, coin string) (float64, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")
	params.Set("coin", coin)

	var result walletResult
	if err := c.getSigned(ctx, "/v5/account/wallet-balance", params, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 || len(result.List[0].Coin) == 0 {
		return 0, nil
	}
	raw := result.List[0].Coin[0].WalletBalance
	if raw == "" {
		return 0, nil
	}
	balance, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing wallet balance %q: %w", raw, err)
	}
	return balance, nil
}

// SetLeverage sets buy and sell leverage for a linear symbol. Bybit answers
// 110043 when the leverage is already at the requested value; that is not an
// error here.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := map[string]string{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}

	err := c.post(ctx, "/v5/position/set-leverage", body, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == retCodeLeverageNotModified {
		return nil
	}
	return err
}

// PlaceMarketOrder places a linear market order
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*Order, error) {
	body := map[string]string{
		"category":  "linear",
		"symbol":    symbol,
		"side":      side,
		"orderType": "Market",
		"qty":       strconv.FormatFloat(qty, 'f', -1, 64),
	}

	var result orderResult
	if err := c.post(ctx, "/v5/order/create", body, &result); err != nil {
		return nil, err
	}
	return &Order{
		OrderID: result.OrderID,
		Symbol:  symbol,
		Side:    side,
		Qty:     qty,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) getSigned(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.sign(req, params.Encode())
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body map[string]string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, string(payload))
	return c.do(req, out)
}

// sign applies the Bybit v5 HMAC-SHA256 signature headers.
// The signed payload is timestamp + apiKey + recvWindow + (query or body).
func (c *Client) sign(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + c.apiKey + c.recvWindow + payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return &TransientError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if env.RetCode != 0 {
		return &APIError{Code: env.RetCode, Msg: env.RetMsg}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("parsing result: %w", err)
		}
	}
	return nil
}
