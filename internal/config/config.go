package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/manpreetbhatti/showroom/internal/room"
	"github.com/samber/lo"
)

type Config struct {
	Port           int           `env:"PORT"`
	DBPath         string        `env:"SHOWROOM_DB_PATH"`
	SeedPath       string        `env:"SHOWROOM_SEED_PATH"`
	LogLevel       string        `env:"LOG_LEVEL"`
	LogPretty      bool          `env:"LOG_PRETTY"`
	RoomCapacity   int           `env:"ROOM_CAPACITY"`
	HubShards      int           `env:"HUB_SHARDS"`
	ReportInterval time.Duration `env:"REPORT_INTERVAL"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS"`
}

func Default() Config {
	return Config{
		Port:           8080,
		DBPath:         "./data/showroom.db",
		LogLevel:       "info",
		LogPretty:      true,
		RoomCapacity:   room.DefaultCapacity,
		HubShards:      8,
		ReportInterval: time.Minute,
		AllowedOrigins: "*",
	}
}

// Load reads .env when present, then the process environment, over the defaults.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnviron()
}

func FromEnviron() (Config, error) {
	cfg := Default()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("SHOWROOM_DB_PATH is empty"))
	}
	if c.RoomCapacity <= 0 {
		errs = append(errs, fmt.Errorf("ROOM_CAPACITY must be positive: %d", c.RoomCapacity))
	}
	if c.HubShards <= 0 {
		errs = append(errs, fmt.Errorf("HUB_SHARDS must be positive: %d", c.HubShards))
	}
	if c.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("REPORT_INTERVAL must be positive: %s", c.ReportInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins splits ALLOWED_ORIGINS; "*" allows any origin.
func (c Config) Origins() []string {
	parts := lo.Map(strings.Split(c.AllowedOrigins, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}
