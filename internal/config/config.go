// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salon-wallet/pkg/db" // Import db package for its Config struct
)

// Payout providers.
const (
	PayoutProviderMock = "mock"
	PayoutProviderMoMo = "momo"
)

// Notification backends.
const (
	NotifyBackendLog   = "log"
	NotifyBackendKafka = "kafka"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort     string
	LogLevel       string
	AllowedOrigins []string
	DB             db.Config
	AutoMigrate    bool
	Wallet         WalletConfig
	Reconcile      ReconcileConfig
	Payout         PayoutConfig
	Notify         NotifyConfig
	Redis          RedisConfig
}

// WalletConfig is the wallet policy. The withdrawal orchestrator is the only
// reader of the minimum; handlers rely on its validation.
type WalletConfig struct {
	Currency      string
	MinWithdrawal decimal.Decimal
}

// ReconcileConfig bounds the asynchronous payout status polling.
type ReconcileConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	ResumeBatch  int
}

// PayoutConfig selects and configures the payout gateway.
type PayoutConfig struct {
	Provider string

	MoMoBaseURL         string
	MoMoAPIUser         string
	MoMoAPIKey          string
	MoMoSubscriptionKey string
	MoMoTargetEnv       string
	MoMoTimeout         time.Duration

	MockLatency       time.Duration
	MockOutcome       string
	MockFailureReason string
}

// NotifyConfig selects the notification backend and sizes the dispatcher.
type NotifyConfig struct {
	Backend      string
	KafkaBrokers []string
	KafkaTopic   string
	Workers      int
	QueueSize    int
}

// RedisConfig configures the reconcile lease store. An empty Addr selects the
// in-process lease.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfig loads configuration from environment variables.
// It returns an AppConfig instance or an error if any variable is invalid.
func LoadConfig() (*AppConfig, error) {
	var errs []string
	p := &parser{errs: &errs}

	cfg := &AppConfig{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		DB: db.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     p.int("DB_PORT", 5432),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "walletdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		AutoMigrate: p.bool("DB_AUTO_MIGRATE", true),
		Wallet: WalletConfig{
			Currency:      getEnv("WALLET_CURRENCY", "RWF"),
			MinWithdrawal: p.decimal("WITHDRAWAL_MIN_AMOUNT", decimal.NewFromInt(1000)),
		},
		Reconcile: ReconcileConfig{
			PollInterval: p.duration("RECONCILE_POLL_INTERVAL", 3*time.Second),
			MaxAttempts:  p.int("RECONCILE_MAX_ATTEMPTS", 10),
			ResumeBatch:  p.int("RECONCILE_RESUME_BATCH", 500),
		},
		Payout: PayoutConfig{
			Provider:            strings.ToLower(getEnv("PAYOUT_PROVIDER", PayoutProviderMock)),
			MoMoBaseURL:         getEnv("MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com"),
			MoMoAPIUser:         os.Getenv("MOMO_API_USER"),
			MoMoAPIKey:          os.Getenv("MOMO_API_KEY"),
			MoMoSubscriptionKey: os.Getenv("MOMO_SUBSCRIPTION_KEY"),
			MoMoTargetEnv:       getEnv("MOMO_TARGET_ENVIRONMENT", "sandbox"),
			MoMoTimeout:         p.duration("MOMO_TIMEOUT", 10*time.Second),
			MockLatency:         p.duration("MOCK_PAYOUT_LATENCY", 2*time.Second),
			MockOutcome:         strings.ToUpper(getEnv("MOCK_PAYOUT_OUTCOME", "SUCCESSFUL")),
			MockFailureReason:   getEnv("MOCK_PAYOUT_FAILURE_REASON", "payout rejected by provider"),
		},
		Notify: NotifyConfig{
			Backend:      strings.ToLower(getEnv("NOTIFY_BACKEND", NotifyBackendLog)),
			KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			KafkaTopic:   getEnv("KAFKA_NOTIFY_TOPIC", "wallet.notifications"),
			Workers:      p.int("NOTIFY_WORKERS", 4),
			QueueSize:    p.int("NOTIFY_QUEUE_SIZE", 256),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       p.int("REDIS_DB", 0),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if !c.Wallet.MinWithdrawal.IsPositive() {
		return fmt.Errorf("invalid configuration: WITHDRAWAL_MIN_AMOUNT must be positive")
	}
	if c.Reconcile.PollInterval <= 0 || c.Reconcile.MaxAttempts <= 0 {
		return fmt.Errorf("invalid configuration: reconcile poll interval and attempts must be positive")
	}
	switch c.Payout.Provider {
	case PayoutProviderMock:
		switch c.Payout.MockOutcome {
		case "PENDING", "SUCCESSFUL", "FAILED":
		default:
			return fmt.Errorf("invalid configuration: unknown MOCK_PAYOUT_OUTCOME %q", c.Payout.MockOutcome)
		}
	case PayoutProviderMoMo:
		if c.Payout.MoMoAPIUser == "" || c.Payout.MoMoAPIKey == "" || c.Payout.MoMoSubscriptionKey == "" {
			return fmt.Errorf("invalid configuration: MOMO_API_USER, MOMO_API_KEY and MOMO_SUBSCRIPTION_KEY are required for the momo provider")
		}
	default:
		return fmt.Errorf("invalid configuration: unknown PAYOUT_PROVIDER %q", c.Payout.Provider)
	}
	switch c.Notify.Backend {
	case NotifyBackendLog, NotifyBackendKafka:
	default:
		return fmt.Errorf("invalid configuration: unknown NOTIFY_BACKEND %q", c.Notify.Backend)
	}
	if c.Notify.Workers <= 0 || c.Notify.QueueSize <= 0 {
		return fmt.Errorf("invalid configuration: NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs *[]string
}

func (p *parser) fail(key string, err error) {
	*p.errs = append(*p.errs, fmt.Sprintf("invalid %s: %v", key, err))
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

func (p *parser) decimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}
