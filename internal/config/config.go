// Package config loads service configuration from config.yaml plus
// REPOSTLY_-prefixed environment overrides. Missing required secrets are a
// startup failure, never a per-request one.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Credential CredentialConfig `mapstructure:"credential"`
	Credits    CreditsConfig    `mapstructure:"credits"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Media      MediaConfig      `mapstructure:"media"`
	S3         S3Config         `mapstructure:"s3"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
	Journal    JournalConfig    `mapstructure:"journal"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug | release | test
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres | sqlite
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type JWTConfig struct {
	Secret                   string `mapstructure:"secret"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// ProviderApp holds the OAuth app registration for one platform.
type ProviderApp struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type CredentialConfig struct {
	// RefreshWindowSeconds is the minimum remaining validity of any token
	// handed to a caller; tokens closer to expiry are refreshed first.
	RefreshWindowSeconds  int                    `mapstructure:"refresh_window_seconds"`
	RefreshTimeoutSeconds int                    `mapstructure:"refresh_timeout_seconds"`
	Providers             map[string]ProviderApp `mapstructure:"providers"`
}

type CreditsConfig struct {
	// RatePerUSD converts minor currency units into credits (credits per $1).
	RatePerUSD   float64          `mapstructure:"rate_per_usd"`
	InitialGrant int64            `mapstructure:"initial_grant"`
	DefaultCost  int64            `mapstructure:"default_cost"`
	Pricing      map[string]int64 `mapstructure:"pricing"`
}

type StripeConfig struct {
	WebhookSecret    string `mapstructure:"webhook_secret"`
	ToleranceSeconds int    `mapstructure:"tolerance_seconds"`
}

type MediaConfig struct {
	// CanonicalHosts already belong to our storage; URLs there are returned
	// unchanged without a re-fetch.
	CanonicalHosts         []string `mapstructure:"canonical_hosts"`
	PublicBaseURL          string   `mapstructure:"public_base_url"`
	MaxDownloadBytes       int64    `mapstructure:"max_download_bytes"`
	DownloadTimeoutSeconds int      `mapstructure:"download_timeout_seconds"`
	CacheMaxEntries        int64    `mapstructure:"cache_max_entries"`
	CacheTTLSeconds        int      `mapstructure:"cache_ttl_seconds"`
	URLCacheTTLSeconds     int      `mapstructure:"url_cache_ttl_seconds"`
}

type S3Config struct {
	Region            string `mapstructure:"region"`
	Bucket            string `mapstructure:"bucket"`
	Prefix            string `mapstructure:"prefix"`
	AccessKeyID       string `mapstructure:"access_key_id"`
	SecretAccessKey   string `mapstructure:"secret_access_key"`
	PresignTTLSeconds int    `mapstructure:"presign_ttl_seconds"`
}

type SweepConfig struct {
	Schedule     string `mapstructure:"schedule"`
	GraceSeconds int    `mapstructure:"grace_seconds"`
	BatchSize    int    `mapstructure:"batch_size"`
}

type JournalConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// Load reads configuration from the given file (or ./config.yaml when empty)
// and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("REPOSTLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when the environment supplies everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.access_token_expire_minutes", 1440)
	v.SetDefault("credential.refresh_window_seconds", 300)
	v.SetDefault("credential.refresh_timeout_seconds", 30)
	v.SetDefault("credits.rate_per_usd", 5)
	v.SetDefault("credits.initial_grant", 10)
	v.SetDefault("credits.default_cost", 1)
	v.SetDefault("credits.pricing", map[string]int64{
		"video.generate":     10,
		"video.generate_pro": 25,
		"caption.generate":   1,
		"hashtag.generate":   1,
	})
	v.SetDefault("stripe.tolerance_seconds", 300)
	v.SetDefault("media.max_download_bytes", 512<<20)
	v.SetDefault("media.download_timeout_seconds", 120)
	v.SetDefault("media.cache_max_entries", 10000)
	v.SetDefault("media.cache_ttl_seconds", 86400)
	v.SetDefault("media.url_cache_ttl_seconds", 600)
	v.SetDefault("s3.region", "us-west-2")
	v.SetDefault("s3.prefix", "media")
	v.SetDefault("s3.presign_ttl_seconds", 3600)
	v.SetDefault("sweep.schedule", "@every 5m")
	v.SetDefault("sweep.grace_seconds", 120)
	v.SetDefault("sweep.batch_size", 100)
	v.SetDefault("journal.workers", 8)
	v.SetDefault("journal.queue_size", 4096)
}

// Validate rejects configurations that would only fail at request time.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Database.DSN) == "" {
		missing = append(missing, "database.dsn")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		missing = append(missing, "jwt.secret")
	}
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
		missing = append(missing, "stripe.webhook_secret")
	}
	if strings.TrimSpace(c.S3.Bucket) == "" {
		missing = append(missing, "s3.bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.Credits.RatePerUSD <= 0 {
		return fmt.Errorf("credits.rate_per_usd must be positive, got %v", c.Credits.RatePerUSD)
	}
	return nil
}

// RefreshWindow returns the configured token freshness threshold.
func (c *Config) RefreshWindow() time.Duration {
	if c.Credential.RefreshWindowSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Credential.RefreshWindowSeconds) * time.Second
}

// RefreshTimeout bounds a single provider token-endpoint call.
func (c *Config) RefreshTimeout() time.Duration {
	if c.Credential.RefreshTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Credential.RefreshTimeoutSeconds) * time.Second
}

// StripeTolerance returns the accepted webhook signature age.
func (c *Config) StripeTolerance() time.Duration {
	if c.Stripe.ToleranceSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Stripe.ToleranceSeconds) * time.Second
}
