// Package config loads service configuration from the environment,
// reading a .env file first when one is present.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Port string

	// StoreBackend selects the LedgerStore implementation.
	StoreBackend string
	SQLitePath   string
	PostgresDSN  string

	// KafkaBrokers empty disables event publishing.
	KafkaBrokers   []string
	ViolationTopic string
	PaymentTopic   string

	// DebounceBuffer is the cooldown between fines for one plate.
	DebounceBuffer time.Duration
	// DefaultFine is charged per violation unless the caller overrides it.
	DefaultFine decimal.Decimal
	// PlatePattern, when set, restricts accepted plates to a regional format.
	PlatePattern *regexp.Regexp

	// CameraURL non-empty enables the background poller.
	CameraURL      string
	CameraInterval time.Duration
}

// Load reads configuration from the environment with defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getenv("PORT", "8080"),
		StoreBackend:   strings.ToLower(getenv("STORE_BACKEND", BackendSQLite)),
		SQLitePath:     getenv("SQLITE_PATH", "data/ledger.db"),
		PostgresDSN:    os.Getenv("DATABASE_URL"),
		ViolationTopic: getenv("KAFKA_VIOLATION_TOPIC", "violation.recorded"),
		PaymentTopic:   getenv("KAFKA_PAYMENT_TOPIC", "payment.received"),
		CameraURL:      os.Getenv("CAMERA_URL"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.DebounceBuffer, err = getduration("DEBOUNCE_BUFFER", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CameraInterval, err = getduration("CAMERA_POLL_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}

	fine := getenv("FINE_AMOUNT", "100")
	if cfg.DefaultFine, err = decimal.NewFromString(fine); err != nil {
		return Config{}, fmt.Errorf("invalid FINE_AMOUNT %q: %w", fine, err)
	}

	if pattern := os.Getenv("PLATE_PATTERN"); pattern != "" {
		if cfg.PlatePattern, err = regexp.Compile(pattern); err != nil {
			return Config{}, fmt.Errorf("invalid PLATE_PATTERN %q: %w", pattern, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures the configuration is internally consistent before use.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("unsupported store backend: %s", c.StoreBackend)
	}
	if c.StoreBackend == BackendSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
	}
	if c.StoreBackend == BackendPostgres && strings.TrimSpace(c.PostgresDSN) == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if c.DebounceBuffer <= 0 {
		return fmt.Errorf("debounce buffer must be positive")
	}
	if c.DefaultFine.Sign() <= 0 || !c.DefaultFine.IsInteger() {
		return fmt.Errorf("fine amount must be a positive whole number")
	}
	if c.CameraURL != "" && c.CameraInterval <= 0 {
		return fmt.Errorf("camera poll interval must be positive")
	}
	return nil
}

// PollerEnabled reports whether the background camera poller should run.
func (c Config) PollerEnabled() bool {
	return c.CameraURL != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
