// Package config loads application configuration from a YAML file
// with environment-variable overrides for credentials.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	App      AppConfig      `mapstructure:"app"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Square   SquareConfig   `mapstructure:"square"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// AppConfig holds workflow-level settings
type AppConfig struct {
	// BaseURL is where customers land after checkout (the dashboard)
	BaseURL         string `mapstructure:"base_url"`
	DefaultProvider string `mapstructure:"default_provider"`
}

// StripeConfig holds Stripe API credentials
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// SquareConfig holds Square API credentials
type SquareConfig struct {
	AccessToken   string        `mapstructure:"access_token"`
	LocationID    string        `mapstructure:"location_id"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	// NotificationURL must match the webhook subscription exactly;
	// Square signs deliveries over it.
	NotificationURL string        `mapstructure:"notification_url"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// NotifyConfig holds payment notification settings
type NotifyConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	EmailFrom    string `mapstructure:"email_from"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// A local .env is a convenience for development; absence is fine.
	_ = gotenv.Load()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/paylink.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// App defaults
	viper.SetDefault("app.base_url", "http://localhost:3000")
	viper.SetDefault("app.default_provider", "stripe")

	// Square defaults
	viper.SetDefault("square.timeout", 15*time.Second)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	viper.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")
	viper.BindEnv("square.access_token", "SQUARE_ACCESS_TOKEN")
	viper.BindEnv("square.location_id", "SQUARE_LOCATION_ID")
	viper.BindEnv("square.webhook_secret", "SQUARE_WEBHOOK_SECRET")
	viper.BindEnv("square.notification_url", "SQUARE_NOTIFICATION_URL")
	viper.BindEnv("notify.resend_api_key", "RESEND_API_KEY")
	viper.BindEnv("notify.email_from", "EMAIL_FROM")
	viper.BindEnv("app.base_url", "APP_BASE_URL")
}

// Validate validates the configuration. Provider credentials are not
// required here: an unconfigured provider boots fine and reports a
// config error only when a send or webhook actually reaches it.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.App.BaseURL == "" {
		return fmt.Errorf("app.base_url is required")
	}

	switch c.App.DefaultProvider {
	case "stripe", "square":
	default:
		return fmt.Errorf("app.default_provider must be stripe or square, got %q", c.App.DefaultProvider)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}
