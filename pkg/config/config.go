package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderConfig describes one liquidity provider endpoint. Providers are
// listed in priority order.
type ProviderConfig struct {
	Name     string
	BaseURL  string
	RelayURL string // private submission path for MEV-protected trades
	APIKey   string
}

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel  string
	LogFormat string
	HTTPPort  string

	// Providers (priority order)
	Providers []ProviderConfig

	// Quoting
	QuoteTimeout  time.Duration
	QuoteValidity time.Duration
	QuoteCacheTTL time.Duration

	// Routing
	PriceImpactCeilingPct float64
	DefaultSlippagePct    float64
	MEVThresholdUSD       float64

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerWindow           time.Duration
	BreakerCooldown         time.Duration
	BreakerMaxCooldown      time.Duration

	// Execution
	MaxFallbackAttempts int
	SubmitTimeout       time.Duration
	ChainID             uint64

	// Settlement
	SettlementInitialInterval time.Duration
	SettlementMaxInterval     time.Duration
	SettlementMaxWait         time.Duration
	SettlementFeedURL         string // optional push feed; polling remains authoritative

	// Signer
	SignerURL     string
	SignerTimeout time.Duration

	// Risk
	RiskBudgetBackend   string // "memory" or "redis"
	RiskMaxPositionPct  float64
	RiskMaxDailyLossUSD float64
	RiskDrawdownKillPct float64
	RiskMinTradeUSD     float64
	ReferencePrices     map[string]float64 // indicative USD prices for pre-quote notional estimates
	RedisAddr           string
	RedisPassword       string
	RedisDB             int

	// Notifications
	WebhookURL string

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		HTTPPort:  getEnvOrDefault("HTTP_PORT", "8080"),

		// Quoting defaults
		QuoteTimeout:  getDurationOrDefault("QUOTE_TIMEOUT", 3*time.Second),
		QuoteValidity: getDurationOrDefault("QUOTE_VALIDITY", 30*time.Second),
		QuoteCacheTTL: getDurationOrDefault("QUOTE_CACHE_TTL", 2*time.Second),

		// Routing defaults
		PriceImpactCeilingPct: getFloat64OrDefault("PRICE_IMPACT_CEILING_PCT", 3.0),
		DefaultSlippagePct:    getFloat64OrDefault("DEFAULT_SLIPPAGE_PCT", 0.5),
		MEVThresholdUSD:       getFloat64OrDefault("MEV_THRESHOLD_USD", 1000.0),

		// Circuit breaker defaults
		BreakerFailureThreshold: getIntOrDefault("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerWindow:           getDurationOrDefault("BREAKER_WINDOW", 60*time.Second),
		BreakerCooldown:         getDurationOrDefault("BREAKER_COOLDOWN", 30*time.Second),
		BreakerMaxCooldown:      getDurationOrDefault("BREAKER_MAX_COOLDOWN", 8*time.Minute),

		// Execution defaults
		MaxFallbackAttempts: getIntOrDefault("MAX_FALLBACK_ATTEMPTS", 2),
		SubmitTimeout:       getDurationOrDefault("SUBMIT_TIMEOUT", 10*time.Second),
		ChainID:             uint64(getIntOrDefault("CHAIN_ID", 1)),

		// Settlement defaults
		SettlementInitialInterval: getDurationOrDefault("SETTLEMENT_INITIAL_INTERVAL", 1*time.Second),
		SettlementMaxInterval:     getDurationOrDefault("SETTLEMENT_MAX_INTERVAL", 10*time.Second),
		SettlementMaxWait:         getDurationOrDefault("SETTLEMENT_MAX_WAIT", 5*time.Minute),
		SettlementFeedURL:         os.Getenv("SETTLEMENT_FEED_URL"),

		// Signer defaults
		SignerURL:     getEnvOrDefault("SIGNER_URL", "http://localhost:9200"),
		SignerTimeout: getDurationOrDefault("SIGNER_TIMEOUT", 5*time.Second),

		// Risk defaults
		RiskBudgetBackend:   getEnvOrDefault("RISK_BUDGET_BACKEND", "memory"),
		RiskMaxPositionPct:  getFloat64OrDefault("RISK_MAX_POSITION_PCT", 0.05),
		RiskMaxDailyLossUSD: getFloat64OrDefault("RISK_MAX_DAILY_LOSS_USD", 1000.0),
		RiskDrawdownKillPct: getFloat64OrDefault("RISK_DRAWDOWN_KILL_PCT", 15.0),
		RiskMinTradeUSD:     getFloat64OrDefault("RISK_MIN_TRADE_USD", 10.0),
		ReferencePrices:     loadReferencePrices(),
		RedisAddr:           getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getIntOrDefault("REDIS_DB", 0),

		// Notification defaults
		WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "dexrouter"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "dexrouter123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "dex_router"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	cfg.Providers = loadProviders()

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// loadProviders reads the ordered provider list from PROVIDERS (comma-separated
// names) plus per-provider endpoint overrides. Defaults cover the three free
// aggregators.
func loadProviders() []ProviderConfig {
	names := strings.Split(getEnvOrDefault("PROVIDERS", "zeroex,oneinch,paraswap"), ",")

	defaults := map[string]ProviderConfig{
		"zeroex":   {Name: "zeroex", BaseURL: "https://api.0x.org", RelayURL: "https://api.0x.org/private"},
		"oneinch":  {Name: "oneinch", BaseURL: "https://api.1inch.dev", RelayURL: "https://api.1inch.dev/private"},
		"paraswap": {Name: "paraswap", BaseURL: "https://api.paraswap.io", RelayURL: "https://api.paraswap.io/private"},
	}

	providers := make([]ProviderConfig, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}

		pc, ok := defaults[name]
		if !ok {
			pc = ProviderConfig{Name: name}
		}

		envName := strings.ToUpper(name)
		if url := os.Getenv("PROVIDER_" + envName + "_URL"); url != "" {
			pc.BaseURL = url
		}
		if url := os.Getenv("PROVIDER_" + envName + "_RELAY_URL"); url != "" {
			pc.RelayURL = url
		}
		pc.APIKey = os.Getenv("PROVIDER_" + envName + "_API_KEY")

		providers = append(providers, pc)
	}

	return providers
}

// loadReferencePrices reads indicative USD prices from REFERENCE_PRICES,
// a comma-separated TOKEN=PRICE list (e.g. "WETH=3000,USDC=1"). Tokens not
// listed have no pre-quote notional estimate.
func loadReferencePrices() map[string]float64 {
	raw := os.Getenv("REFERENCE_PRICES")
	if raw == "" {
		return nil
	}

	prices := make(map[string]float64)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}
		price, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || price <= 0 {
			continue
		}
		prices[strings.ToUpper(parts[0])] = price
	}

	return prices
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("PROVIDERS cannot be empty")
	}

	for _, p := range c.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("provider %q has no base URL", p.Name)
		}
	}

	if c.PriceImpactCeilingPct <= 0 || c.PriceImpactCeilingPct >= 100 {
		return fmt.Errorf("PRICE_IMPACT_CEILING_PCT must be between 0 and 100, got %f", c.PriceImpactCeilingPct)
	}

	if c.DefaultSlippagePct <= 0 || c.DefaultSlippagePct >= 100 {
		return fmt.Errorf("DEFAULT_SLIPPAGE_PCT must be between 0 and 100, got %f", c.DefaultSlippagePct)
	}

	if c.MEVThresholdUSD < 0 {
		return fmt.Errorf("MEV_THRESHOLD_USD cannot be negative, got %f", c.MEVThresholdUSD)
	}

	if c.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive, got %d", c.BreakerFailureThreshold)
	}

	if c.BreakerCooldown > c.BreakerMaxCooldown {
		return fmt.Errorf("BREAKER_COOLDOWN (%s) cannot exceed BREAKER_MAX_COOLDOWN (%s)", c.BreakerCooldown, c.BreakerMaxCooldown)
	}

	if c.MaxFallbackAttempts < 0 {
		return fmt.Errorf("MAX_FALLBACK_ATTEMPTS cannot be negative, got %d", c.MaxFallbackAttempts)
	}

	if c.RiskBudgetBackend != "memory" && c.RiskBudgetBackend != "redis" {
		return fmt.Errorf("RISK_BUDGET_BACKEND must be 'memory' or 'redis', got %q", c.RiskBudgetBackend)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
