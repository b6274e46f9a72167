// internal/config/config.go
//
// Server configuration.
// Responsibilities:
//   - Load a local .env file when present (godotenv), without overriding the
//     real environment.
//   - Parse the environment into Config (caarlos0/env) with defaults.
//   - Apply the log level / console writer to the global zerolog logger.
//
// Environment variables:
//   HUNT_ADDR              listen address                      (:5175)
//   HUNT_DB                sqlite path; empty keeps sessions in memory
//   HUNT_BOARD_FILE        board description JSON; empty uses the embedded board
//   HUNT_RULES             default rules preset: standard|classic
//   HUNT_CHAIN             default chain policy: voluntary|forced
//   HUNT_TOKEN_SECRET      HMAC key for seat tokens; random per process when empty
//   HUNT_TOKEN_TTL         seat token lifetime                 (24h)
//   HUNT_FORFEIT_TIMEOUT   forfeit a disconnected player; 0 disables (2m)
//   HUNT_IDLE_TIMEOUT      destroy a session nobody is attached to (5m)
//   HUNT_MAX_SESSIONS      concurrent session cap; 0 is unlimited (100)
//   CLIENT_ORIGIN          CORS origin                         (http://localhost:5173)
//   LOG_LEVEL              zerolog level                       (info)
//   LOG_PRETTY             human-readable console logs         (false)

package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is the environment-derived server configuration.
type Config struct {
	Addr           string        `env:"HUNT_ADDR" envDefault:":5175"`
	DBPath         string        `env:"HUNT_DB"`
	BoardFile      string        `env:"HUNT_BOARD_FILE"`
	Rules          string        `env:"HUNT_RULES" envDefault:"standard"`
	Chain          string        `env:"HUNT_CHAIN" envDefault:"voluntary"`
	TokenSecret    string        `env:"HUNT_TOKEN_SECRET"`
	TokenTTL       time.Duration `env:"HUNT_TOKEN_TTL" envDefault:"24h"`
	ForfeitTimeout time.Duration `env:"HUNT_FORFEIT_TIMEOUT" envDefault:"2m"`
	IdleTimeout    time.Duration `env:"HUNT_IDLE_TIMEOUT" envDefault:"5m"`
	MaxSessions    int           `env:"HUNT_MAX_SESSIONS" envDefault:"100"`
	ClientOrigin   string        `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool          `env:"LOG_PRETTY" envDefault:"false"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = randomSecret()
		log.Warn().Msg("HUNT_TOKEN_SECRET not set; seat tokens will not survive a restart")
	}
	return cfg, nil
}

// Secret returns the token key as bytes.
func (c Config) Secret() []byte { return []byte(c.TokenSecret) }

// SetupLogging applies the log level and writer to the global logger.
func (c Config) SetupLogging() {
	if lvl, err := zerolog.ParseLevel(c.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if c.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
