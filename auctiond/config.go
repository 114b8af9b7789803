package main

import (
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/xerrors"
)

// Config is the daemon's environment-driven configuration.
type Config struct {
	// Listener selects the transport: "tcp" for development, "vsock"
	// when the daemon runs inside an enclave behind a fronting host.
	Listener  string `env:"AUCTIOND_LISTENER" envDefault:"tcp"`
	Addr      string `env:"AUCTIOND_ADDR" envDefault:":7700"`
	VsockPort uint32 `env:"AUCTIOND_VSOCK_PORT" envDefault:"5000"`

	MaxWorkers   int           `env:"AUCTIOND_MAX_WORKERS" envDefault:"32"`
	ReadDeadline time.Duration `env:"AUCTIOND_READ_DEADLINE" envDefault:"30s"`

	// Store selects persistence: "memory" or "sqlite".
	Store     string `env:"AUCTIOND_STORE" envDefault:"memory"`
	StorePath string `env:"AUCTIOND_STORE_PATH" envDefault:"auction.db"`

	// JournalPath enables the audit journal when set. JournalSync trades
	// throughput for an fsync after every record.
	JournalPath string `env:"AUCTIOND_JOURNAL"`
	JournalSync bool   `env:"AUCTIOND_JOURNAL_SYNC" envDefault:"false"`

	Operator string   `env:"AUCTIOND_OPERATOR" envDefault:"escrow"`
	Admins   []string `env:"AUCTIOND_ADMINS" envSeparator:","`

	FeeRateBps uint32 `env:"AUCTIOND_FEE_RATE_BPS" envDefault:"250"`
	MinDelta   string `env:"AUCTIOND_MIN_DELTA" envDefault:"0"`

	LogLevel string `env:"AUCTIOND_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, xerrors.Errorf("parse env: %w", err)
	}
	switch cfg.Listener {
	case "tcp", "vsock":
	default:
		return Config{}, xerrors.Errorf("unknown listener %q (want tcp or vsock)", cfg.Listener)
	}
	switch cfg.Store {
	case "memory", "sqlite":
	default:
		return Config{}, xerrors.Errorf("unknown store %q (want memory or sqlite)", cfg.Store)
	}
	if cfg.MaxWorkers <= 0 {
		return Config{}, xerrors.New("AUCTIOND_MAX_WORKERS must be positive")
	}
	return cfg, nil
}
