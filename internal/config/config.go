package config

import (
	"encoding/hex"
	"fmt"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	DatabaseURL string `env:"DATABASE_URL" envDefault:"marketplace.db"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	Chain       Chain       `envPrefix:"CHAIN_"`
	Facilitator Facilitator `envPrefix:"FACILITATOR_"`
	Storage     Storage     `envPrefix:"STORAGE_"`

	// MasterKeyHex is the envelope-encryption master key, 64 hex chars.
	// Decoded once at startup; the raw key is never logged.
	MasterKeyHex string `env:"MASTER_ENCRYPTION_KEY,required"`
}

type Chain struct {
	RPCURL          string `env:"RPC_URL"`
	Network         string `env:"NETWORK" envDefault:"solana-devnet"`
	EscrowProgramID string `env:"ESCROW_PROGRAM_ID" envDefault:"gxDTeSCzk9mqiokrmTb1uNbWCjQ1rj2hsj5N65K9698"`
	PlatformWallet  string `env:"PLATFORM_WALLET"`
}

type Facilitator struct {
	BaseURL   string `env:"BASE_URL"`
	Recipient string `env:"RECIPIENT"`
}

type Storage struct {
	GatewayURL string `env:"GATEWAY_URL"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}

// MasterKey decodes the configured master key. It must be exactly 32 bytes.
func (c *Config) MasterKey() ([]byte, error) {
	key, err := hex.DecodeString(c.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
