package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	PostgresConfig PostgresConfig `json:"postgres"`
	RedisConfig    RedisConfig    `json:"redis"`
	BybitConfig    BybitConfig    `json:"bybit"`
	ControlConfig  ControlConfig  `json:"control"`
	TradingConfig  TradingConfig  `json:"trading"`
	AuthConfig     AuthConfig     `json:"auth"`
	VaultConfig    VaultConfig    `json:"vault"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// ServerConfig holds the management HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds the signal stream configuration
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	Stream   string `json:"stream"`
	Group    string `json:"group"`
}

type BybitConfig struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	BaseURL    string `json:"base_url"`
	DemoMode   bool   `json:"demo_mode"`
	RecvWindow int    `json:"recv_window"` // Milliseconds
}

// ControlConfig points the trader at the management API that owns the
// control state. By default this is the server started by the same process.
type ControlConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

type TradingConfig struct {
	Leverage          int           `json:"leverage"`
	BuyStaleAfter     time.Duration `json:"buy_stale_after"`
	SellStaleAfter    time.Duration `json:"sell_stale_after"`
	ExecuteAttempts   int           `json:"execute_attempts"`
	ExecuteRetryDelay time.Duration `json:"execute_retry_delay"`
}

// AuthConfig guards the management API. APIToken is the shared secret used
// by services; AdminPasswordHash enables the operator JWT login when set.
type AuthConfig struct {
	APIToken          string        `json:"api_token"`
	JWTSecret         string        `json:"jwt_secret"`
	AdminPasswordHash string        `json:"admin_password_hash"`
	TokenDuration     time.Duration `json:"token_duration"`
}

// VaultConfig holds HashiCorp Vault configuration for exchange credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthConfig.APIToken == "" {
		return fmt.Errorf("MANAGEMENT_API_TOKEN must be set")
	}
	if c.TradingConfig.ExecuteAttempts < 1 {
		return fmt.Errorf("trading execute_attempts must be at least 1")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION_MODE", "true") == "true"
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Postgres config
	cfg.PostgresConfig.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
	cfg.PostgresConfig.Port = getEnvIntOrDefault("POSTGRES_PORT", 5432)
	cfg.PostgresConfig.User = getEnvOrDefault("POSTGRES_USER", cfg.PostgresConfig.User)
	cfg.PostgresConfig.Password = getEnvOrDefault("POSTGRES_PASSWORD", cfg.PostgresConfig.Password)
	cfg.PostgresConfig.Database = getEnvOrDefault("POSTGRES_DB", cfg.PostgresConfig.Database)
	cfg.PostgresConfig.SSLMode = getEnvOrDefault("POSTGRES_SSL_MODE", "disable")

	// Redis config
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)
	cfg.RedisConfig.Stream = getEnvOrDefault("SIGNAL_STREAM", "signals")
	cfg.RedisConfig.Group = getEnvOrDefault("SIGNAL_GROUP", "trader")

	// Bybit config
	cfg.BybitConfig.APIKey = getEnvOrDefault("BYBIT_API_KEY", cfg.BybitConfig.APIKey)
	cfg.BybitConfig.SecretKey = getEnvOrDefault("BYBIT_API_SECRET", cfg.BybitConfig.SecretKey)
	cfg.BybitConfig.BaseURL = getEnvOrDefault("BYBIT_BASE_URL", cfg.BybitConfig.BaseURL)
	if cfg.BybitConfig.BaseURL == "" {
		cfg.BybitConfig.BaseURL = "https://api.bybit.com"
	}
	cfg.BybitConfig.DemoMode = getEnvOrDefault("BYBIT_DEMO_MODE", "true") == "true"
	cfg.BybitConfig.RecvWindow = getEnvIntOrDefault("BYBIT_RECV_WINDOW", 5000)

	// Control API config
	cfg.ControlConfig.BaseURL = getEnvOrDefault("MANAGEMENT_API_URL",
		fmt.Sprintf("http://localhost:%d", cfg.ServerConfig.Port))
	cfg.ControlConfig.Token = getEnvOrDefault("MANAGEMENT_API_TOKEN", cfg.ControlConfig.Token)

	// Trading config
	cfg.TradingConfig.Leverage = getEnvIntOrDefault("TRADING_LEVERAGE", 1)
	cfg.TradingConfig.BuyStaleAfter = getEnvDurationOrDefault("TRADING_BUY_STALE_AFTER", 30*time.Minute)
	cfg.TradingConfig.SellStaleAfter = getEnvDurationOrDefault("TRADING_SELL_STALE_AFTER", 24*time.Hour)
	cfg.TradingConfig.ExecuteAttempts = getEnvIntOrDefault("TRADING_EXECUTE_ATTEMPTS", 3)
	cfg.TradingConfig.ExecuteRetryDelay = getEnvDurationOrDefault("TRADING_EXECUTE_RETRY_DELAY", time.Second)

	// Auth config
	cfg.AuthConfig.APIToken = cfg.ControlConfig.Token
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", 12*time.Hour)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "signal-trader/api-keys")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
