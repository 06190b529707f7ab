package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Host string `env:"HOST"`
	Port int    `env:"PORT" envDefault:"3001"`

	// GracePeriod is how long a dropped player may take to rejoin before
	// the opponent is declared the winner.
	GracePeriod time.Duration `env:"GRACE_PERIOD" envDefault:"30s"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`

	OutboxSize      int           `env:"OUTBOX_SIZE" envDefault:"16"`
	HubInboxSize    int           `env:"HUB_INBOX_SIZE" envDefault:"64"`
	PingInterval    time.Duration `env:"PING_INTERVAL" envDefault:"25s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES" envDefault:"65536"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string        `env:"LOG_FORMAT" envDefault:"json"`

	// DatabaseURL enables the finished-match archive when set.
	DatabaseURL      string `env:"DATABASE_URL"`
	ArchiveQueueSize int    `env:"ARCHIVE_QUEUE_SIZE" envDefault:"128"`
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads the given .env files (missing files are skipped) and then
// parses the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, errors.New("GRACE_PERIOD must be positive"))
	}
	if c.OutboxSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_SIZE must be positive"))
	}
	if c.HubInboxSize <= 0 {
		errs = append(errs, errors.New("HUB_INBOX_SIZE must be positive"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("PING_INTERVAL must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("WRITE_TIMEOUT must be positive"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_BYTES must be positive"))
	}
	if c.ArchiveQueueSize <= 0 {
		errs = append(errs, errors.New("ARCHIVE_QUEUE_SIZE must be positive"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
