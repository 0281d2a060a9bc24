// Package config loads runtime configuration from the environment so main
// stays lean.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// NonceTTL bounds the lifetime of an authentication challenge.
const NonceTTL = 5 * time.Minute

// defaultTicketTTL applies when the configured expiry string does not parse.
const defaultTicketTTL = 300 * time.Second

// Config captures everything the server needs. The bank signing secret is
// deliberately its own value: it must never be shared with, or derived from,
// any identity-domain signing key.
type Config struct {
	Addr string `envconfig:"GIRO_ADDR" default:":8080"`

	BankTicketSecret string `envconfig:"GIRO_BANK_TICKET_SECRET" default:"dev-bank-secret-change-in-production"`
	TicketExpiry     string `envconfig:"GIRO_TICKET_EXPIRY" default:"5m"`

	FeeBasisPoints   int64  `envconfig:"GIRO_FEE_BASIS_POINTS" default:"0"`
	FeeCollectionRef string `envconfig:"GIRO_FEE_COLLECTION_REF"`

	OracleRPCURL   string        `envconfig:"GIRO_ORACLE_RPC_URL"`
	OracleContract string        `envconfig:"GIRO_ORACLE_CONTRACT"`
	OracleTimeout  time.Duration `envconfig:"GIRO_ORACLE_TIMEOUT" default:"5s"`

	PostgresURL string `envconfig:"GIRO_POSTGRES_URL"`
	RedisURL    string `envconfig:"GIRO_REDIS_URL"`
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TicketTTL parses the configured expiry string, falling back to 300 seconds
// when the format is unrecognized rather than refusing to start.
func (c Config) TicketTTL() time.Duration {
	d, err := time.ParseDuration(c.TicketExpiry)
	if err != nil || d <= 0 {
		return defaultTicketTTL
	}
	return d
}
