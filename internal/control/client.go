// Package control is the HTTP client for the management API that owns the
// shared control state. The trader never assumes a default when the control
// plane is unreachable; callers must treat ErrControlUnavailable as a
// rejected decision.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrControlUnavailable means the management API could not be reached or
	// answered with a server error
	ErrControlUnavailable = errors.New("control state unavailable")

	// ErrUnauthorized means the shared secret was rejected
	ErrUnauthorized = errors.New("control api token rejected")
)

// State is the shared mutable trading control record
type State struct {
	Enabled           bool    `json:"enabled"`
	PriceCeiling      float64 `json:"price_ceiling"`
	DeployableCapital float64 `json:"deployable_capital"`
	MaxOpenLots       int     `json:"max_open_lots"`
}

// Client talks to the management API using the shared secret token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a control client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// State fetches the full control state
func (c *Client) State(ctx context.Context) (*State, error) {
	var state State
	if err := c.get(ctx, "/get_control_state", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SetDeployableCapital writes a new deployable capital figure. The write is
// last-write-wins on the management side and safe to retry.
func (c *Client) SetDeployableCapital(ctx context.Context, capital float64) error {
	path := "/set_fake_balance/" + strconv.FormatFloat(capital, 'f', -1, 64)
	return c.post(ctx, path)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodPost, path)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("api_key", c.token)
	u.RawQuery = q.Encode()

	return http.NewRequestWithContext(ctx, method, u.String(), nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrControlUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrControlUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrControlUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("control api error %d: %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parsing control state: %w", err)
		}
	}
	return nil
}
