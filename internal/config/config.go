package config

import (
	"fmt"
	"tigertrust/internal/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const DefaultProgramID = "Count3AcZucFDPSFBAeHkQ6AvttieKUkyJ8HiQGhQwe"

type Config struct {
	DBPath          string   `env:"DB_PATH" envDefault:"tigertrust.db"`
	ServerPort      string   `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel        string   `env:"LOG_LEVEL" envDefault:"info"`
	ProgramIDRaw    string   `env:"PROGRAM_ID" envDefault:"Count3AcZucFDPSFBAeHkQ6AvttieKUkyJ8HiQGhQwe"` // DefaultProgramID
	AuthorityKeys   []string `env:"AUTHORITY_KEYS" envSeparator:","`
	EnforceTierBand bool     `env:"ENFORCE_TIER_BAND" envDefault:"false"`
	RiskEngineURL   string   `env:"RISK_ENGINE_URL" envDefault:"http://localhost:4000"`

	ProgramID   domain.Pubkey
	Authorities []domain.Pubkey
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.resolveKeys(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("program_id", cfg.ProgramID.String()).
		Int("authorities", len(cfg.Authorities)).
		Bool("enforce_tier_band", cfg.EnforceTierBand).
		Str("risk_engine_url", cfg.RiskEngineURL).
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) resolveKeys() error {
	programID, err := domain.ParsePubkey(c.ProgramIDRaw)
	if err != nil {
		return fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}
	c.ProgramID = programID

	c.Authorities = c.Authorities[:0]
	for _, raw := range c.AuthorityKeys {
		if raw == "" {
			continue
		}
		key, err := domain.ParsePubkey(raw)
		if err != nil {
			return fmt.Errorf("invalid AUTHORITY_KEYS entry: %w", err)
		}
		c.Authorities = append(c.Authorities, key)
	}
	if len(c.Authorities) == 0 {
		return fmt.Errorf("AUTHORITY_KEYS is required")
	}
	return nil
}

// ScoreAuthority is the identity this service signs score refreshes with.
func (c *Config) ScoreAuthority() domain.Pubkey {
	return c.Authorities[0]
}

var Module = fx.Provide(Load)
