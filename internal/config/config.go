package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAppName        = "SavannaPay"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour

	defaultStableAsset       = "USDT"
	defaultLiquidityBuffer   = "50"
	defaultMinConfirmations  = 19
	defaultConfirmationWait  = 3 * time.Minute
	defaultReconcileInterval = 10 * time.Minute
	defaultReconcileMinAge   = 3 * time.Minute
	defaultReconcileTimeout  = 12 * time.Hour
	defaultReconcileMaxRetry = 50
	defaultTronNetwork       = "nile"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	Mpesa    MpesaConfig
	Exchange ExchangeConfig
	Tron     TronConfig

	// Transfer saga settings.
	StableAsset         string
	LiquidityBuffer     decimal.Decimal
	MinConfirmations    int
	ConfirmationTimeout time.Duration

	// Reconciliation worker settings.
	ReconcileInterval   time.Duration
	ReconcileMinAge     time.Duration
	ReconcileTimeout    time.Duration
	ReconcileMaxRetries int
}

// MpesaConfig holds mobile-money provider credentials.
type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
}

// ExchangeConfig holds custodial exchange API settings.
type ExchangeConfig struct {
	BaseURL string
	APIKey  string
}

// TronConfig holds blockchain network settings for the USDT bridge.
type TronConfig struct {
	Network          string
	APIKey           string
	HotWalletAddress string
	HotWalletKey     string
	USDTContract     string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,

		Mpesa: MpesaConfig{
			BaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:      os.Getenv("MPESA_SHORT_CODE"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		},
		Exchange: ExchangeConfig{
			BaseURL: os.Getenv("EXCHANGE_BASE_URL"),
			APIKey:  os.Getenv("EXCHANGE_API_KEY"),
		},
		Tron: TronConfig{
			Network:          getEnv("TRON_NETWORK", defaultTronNetwork),
			APIKey:           os.Getenv("TRON_API_KEY"),
			HotWalletAddress: os.Getenv("TRON_HOT_WALLET_ADDRESS"),
			HotWalletKey:     os.Getenv("TRON_HOT_WALLET_KEY"),
			USDTContract:     os.Getenv("TRON_USDT_CONTRACT"),
		},

		StableAsset:         getEnv("STABLE_ASSET", defaultStableAsset),
		MinConfirmations:    defaultMinConfirmations,
		ConfirmationTimeout: defaultConfirmationWait,

		ReconcileInterval:   defaultReconcileInterval,
		ReconcileMinAge:     defaultReconcileMinAge,
		ReconcileTimeout:    defaultReconcileTimeout,
		ReconcileMaxRetries: defaultReconcileMaxRetry,
	}

	buffer, err := decimal.NewFromString(getEnv("LIQUIDITY_SAFETY_BUFFER", defaultLiquidityBuffer))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LIQUIDITY_SAFETY_BUFFER: %w", err)
	}
	cfg.LiquidityBuffer = buffer

	if v := os.Getenv("MIN_CONFIRMATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MIN_CONFIRMATIONS: %w", err)
		}
		cfg.MinConfirmations = n
	}

	if v := os.Getenv("RECONCILE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECONCILE_MAX_RETRIES: %w", err)
		}
		cfg.ReconcileMaxRetries = n
	}

	durations := []struct {
		envVar string
		target *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"CONFIRMATION_TIMEOUT", &cfg.ConfirmationTimeout},
		{"RECONCILE_INTERVAL", &cfg.ReconcileInterval},
		{"RECONCILE_MIN_AGE", &cfg.ReconcileMinAge},
		{"RECONCILE_TIMEOUT", &cfg.ReconcileTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.envVar); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.envVar, err)
			}
			*d.target = parsed
		}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.ReconcileMinAge >= cfg.ReconcileTimeout {
		return Config{}, fmt.Errorf("RECONCILE_MIN_AGE must be shorter than RECONCILE_TIMEOUT")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
