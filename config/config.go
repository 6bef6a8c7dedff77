// Package config loads walletauthd settings from flags, WALLETAUTH_* environment
// variables, an optional YAML file and .env files, in that order of precedence.
package config

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "WALLETAUTH"

// Config is the walletauthd configuration
type Config struct {
	HTTPAddr         string        `mapstructure:"http_addr"`
	RedisURL         string        `mapstructure:"redis_url"`
	NonceTTL         time.Duration `mapstructure:"nonce_ttl"`
	AccessTTL        time.Duration `mapstructure:"access_ttl"`
	RefreshTTL       time.Duration `mapstructure:"refresh_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	SigningKey       string        `mapstructure:"signing_key"`
	JWTIssuer        string        `mapstructure:"jwt_issuer"`
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"`
	EventTopicPrefix string        `mapstructure:"event_topic_prefix"`
}

var defaults = map[string]any{
	"http_addr":          ":9000",
	"redis_url":          "",
	"nonce_ttl":          5 * time.Minute,
	"access_ttl":         5 * time.Minute,
	"refresh_ttl":        120 * time.Hour,
	"sweep_interval":     time.Minute,
	"signing_key":        "",
	"jwt_issuer":         "walletauth",
	"log_level":          "info",
	"log_format":         "text",
	"event_topic_prefix": "auth",
}

// RegisterFlags adds the configuration flags to flags
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "path to a YAML config file")
	flags.String("http-addr", defaults["http_addr"].(string), "HTTP listen address")
	flags.String("redis-url", "", "Redis URL; empty keeps nonces, revocations and events in memory")
	flags.Duration("nonce-ttl", defaults["nonce_ttl"].(time.Duration), "lifetime of a login challenge")
	flags.Duration("access-ttl", defaults["access_ttl"].(time.Duration), "lifetime of an access token")
	flags.Duration("refresh-ttl", defaults["refresh_ttl"].(time.Duration), "lifetime of a refresh token")
	flags.Duration("sweep-interval", defaults["sweep_interval"].(time.Duration), "how often expired in-memory challenges are removed")
	flags.String("log-level", defaults["log_level"].(string), "debug, info, warn or error")
	flags.String("log-format", defaults["log_format"].(string), "text or json")
}

// Load reads the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		// Flags are kebab-case, keys snake_case
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}

		if path, _ := flags.GetString("config"); path != "" {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.NonceTTL <= 0 {
		errs = append(errs, errors.New("nonce_ttl must be positive"))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("access_ttl must be positive"))
	}
	if c.RefreshTTL < c.AccessTTL {
		errs = append(errs, errors.New("refresh_ttl must not be shorter than access_ttl"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	return errors.Join(errs...)
}

// PrivateKey decodes SigningKey, a hex P-256 scalar. An empty key yields a fresh
// ephemeral one; the second return value reports that case.
func (c *Config) PrivateKey() (*ecdsa.PrivateKey, bool, error) {
	if c.SigningKey == "" {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		return key, true, err
	}

	raw := common.FromHex(c.SigningKey)
	if _, err := ecdh.P256().NewPrivateKey(raw); err != nil {
		return nil, false, fmt.Errorf("invalid signing key: %w", err)
	}

	key := &ecdsa.PrivateKey{D: new(big.Int).SetBytes(raw)}
	key.Curve = elliptic.P256()
	key.X, key.Y = key.Curve.ScalarBaseMult(raw)
	return key, false, nil
}

// loadDotEnv loads .env and .env.local if present. Already-set variables win.
func loadDotEnv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", name, err)
		}
	}
}
