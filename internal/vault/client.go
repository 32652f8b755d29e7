package vault

import (
	"context"
	"fmt"

	"bybit-signal-trader/config"

	"github.com/hashicorp/vault/api"
)

// Credentials holds the exchange API key pair stored in Vault
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// Client wraps the HashiCorp Vault client for exchange credential lookup
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client. A disabled config returns a client
// whose ExchangeCredentials falls back to the values passed at call time.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// ExchangeCredentials returns the Bybit key pair from Vault, or the provided
// fallback values when Vault is disabled.
func (c *Client) ExchangeCredentials(ctx context.Context, fallback Credentials) (*Credentials, error) {
	if !c.config.Enabled {
		if fallback.APIKey == "" || fallback.SecretKey == "" {
			return nil, fmt.Errorf("vault is disabled and BYBIT_API_KEY/BYBIT_API_SECRET are not set")
		}
		return &fallback, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials at vault path %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at vault path %s", path)
	}

	creds := &Credentials{}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		creds.SecretKey = v
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("incomplete credentials at vault path %s", path)
	}
	return creds, nil
}
