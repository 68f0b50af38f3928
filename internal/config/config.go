package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/candyshare/candyshare/internal/auth"
	"github.com/candyshare/candyshare/internal/blob"
	"github.com/candyshare/candyshare/internal/payment"
)

// Config holds all configuration for CandyShare
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// Public URL (used in share links and QR codes)
	PublicURL string `mapstructure:"public_url"`

	// TLS configuration
	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`

	// Object storage for uploaded files
	Blob blob.Config `mapstructure:"blob"`

	// Auth configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Payment gateway for pro upgrades
	Payment payment.GatewayConfig `mapstructure:"payment"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Lifecycle worker configuration
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
}

// AuthConfig defines authentication configuration
type AuthConfig struct {
	JWTSecret string           `mapstructure:"jwt_secret"`
	OAuth     auth.OAuthConfig `mapstructure:"oauth"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// LifecycleConfig defines expired file cleanup configuration
type LifecycleConfig struct {
	IntervalMinutes   int `mapstructure:"interval_minutes"`
	GracePeriodHours  int `mapstructure:"grace_period_hours"`
}

// Load loads configuration from various sources
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Bind command line flags
	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// Read from config file if specified
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix("CANDYSHARE")
	v.AutomaticEnv()

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate and setup defaults
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("listen", ":8080")
	// NO default for data_dir - must be explicitly configured
	v.SetDefault("log_level", "info")
	v.SetDefault("public_url", "http://localhost:8080")

	// TLS defaults
	v.SetDefault("enable_tls", false)

	// Blob storage defaults
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.bucket", "candyshare-uploads")
	// endpoint, access_key and secret_key must be explicitly configured

	// OAuth defaults
	v.SetDefault("auth.oauth.provider", "google")

	// Metrics defaults
	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	// Lifecycle defaults
	v.SetDefault("lifecycle.interval_minutes", 60)
	v.SetDefault("lifecycle.grace_period_hours", 24)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":     "listen",
		"data-dir":   "data_dir",
		"log-level":  "log_level",
		"public-url": "public_url",
		"tls-cert":   "cert_file",
		"tls-key":    "key_file",
	}

	for flag, key := range flags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	// data_dir holds the SQLite database and must always be set
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or CANDYSHARE_DATA_DIR environment variable")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Blob.Bucket == "" {
		return fmt.Errorf("blob.bucket is required")
	}

	// Validate TLS configuration
	if cfg.EnableTLS {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert-file or key-file not specified")
		}
	}

	// Generate a JWT secret if not provided. Sessions won't survive a
	// restart without a configured secret.
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = generateRandomSecret(32)
	}

	if cfg.Lifecycle.IntervalMinutes <= 0 {
		cfg.Lifecycle.IntervalMinutes = 60
	}
	if cfg.Lifecycle.GracePeriodHours <= 0 {
		cfg.Lifecycle.GracePeriodHours = 24
	}

	return nil
}

func generateRandomSecret(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random secret: %v", err))
	}
	return hex.EncodeToString(b)
}
