// Package config loads the MedCertify configuration from file, environment
// and flags via viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration.
type Config struct {
	Server  ServerConfig
	API     APIConfig
	Wallet  WalletConfig
	Chain   ChainConfig
	IPFS    IPFSConfig
	Session SessionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// JWTSecret signs the bearer tokens minted after signature
	// verification.
	JWTSecret string
	TokenTTL  time.Duration
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// APIConfig points client commands at a backend.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// WalletConfig locates the local signing key.
type WalletConfig struct {
	KeystoreFile string
	Passphrase   string
}

// ChainConfig selects the certificate registry backend. Mode is "memory",
// "dev" or "rpc".
type ChainConfig struct {
	Mode            string
	RPCURL          string
	ContractAddress string
	DevURL          string
}

type IPFSConfig struct {
	Gateways []string
	Timeout  time.Duration
}

type SessionConfig struct {
	File string
}

type LogConfig struct {
	Level  string
	Format string
}

// New creates a viper instance preconfigured with defaults, config file
// search paths and environment binding. A .env file in the working
// directory is folded into the environment first.
func New() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".medcertify"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEDCERTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.token_ttl", 24*time.Hour)

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("chain.mode", "memory")

	v.SetDefault("ipfs.gateways", []string{
		"https://ipfs.io/ipfs",
		"https://cloudflare-ipfs.com/ipfs",
		"https://gateway.pinata.cloud/ipfs",
	})
	v.SetDefault("ipfs.timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	return v
}

// Load reads the config file (when present) and resolves the Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults, env and flags carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			JWTSecret:    v.GetString("server.jwt_secret"),
			TokenTTL:     v.GetDuration("server.token_ttl"),
		},
		API: APIConfig{
			BaseURL: v.GetString("api.base_url"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Wallet: WalletConfig{
			KeystoreFile: v.GetString("wallet.keystore_file"),
			Passphrase:   v.GetString("wallet.passphrase"),
		},
		Chain: ChainConfig{
			Mode:            v.GetString("chain.mode"),
			RPCURL:          v.GetString("chain.rpc_url"),
			ContractAddress: v.GetString("chain.contract_address"),
			DevURL:          v.GetString("chain.dev_url"),
		},
		IPFS: IPFSConfig{
			Gateways: v.GetStringSlice("ipfs.gateways"),
			Timeout:  v.GetDuration("ipfs.timeout"),
		},
		Session: SessionConfig{
			File: v.GetString("session.file"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	switch cfg.Chain.Mode {
	case "memory", "dev", "rpc":
	default:
		return nil, fmt.Errorf("invalid chain mode: %s", cfg.Chain.Mode)
	}
	if cfg.Chain.Mode == "rpc" {
		if cfg.Chain.RPCURL == "" {
			return nil, fmt.Errorf("chain rpc url not set")
		}
		if cfg.Chain.ContractAddress == "" {
			return nil, fmt.Errorf("chain contract address not set")
		}
	}
	if cfg.Chain.Mode == "dev" && cfg.Chain.DevURL == "" {
		return nil, fmt.Errorf("chain dev url not set")
	}

	return cfg, nil
}
