package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// JWT configuration
	JWT JWTConfig `mapstructure:"jwt"`

	// Payment provider configuration
	Payment PaymentConfig `mapstructure:"payment"`

	// AI inference provider configuration
	AI AIConfig `mapstructure:"ai"`

	// Email provider configuration
	Email EmailConfig `mapstructure:"email"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey       string `mapstructure:"secret_key"`
	AccessTokenTTL  int    `mapstructure:"access_token_ttl"`
	RefreshTokenTTL int    `mapstructure:"refresh_token_ttl"`
	Issuer          string `mapstructure:"issuer"`
	Audience        string `mapstructure:"audience"`
}

// PaymentConfig holds payment provider configuration. MockPriceRef is the
// reserved sentinel that routes checkout creation through the synthetic
// no-charge path; AllowMock gates that path so it cannot be triggered in
// environments where it has not been explicitly enabled.
type PaymentConfig struct {
	APIBaseURL     string `mapstructure:"api_base_url"`
	SecretKey      string `mapstructure:"secret_key"`
	SuccessURL     string `mapstructure:"success_url"`
	CancelURL      string `mapstructure:"cancel_url"`
	MockPriceRef   string `mapstructure:"mock_price_ref"`
	AllowMock      bool   `mapstructure:"allow_mock"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

// AIConfig holds inference provider configuration
type AIConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	ImageModel     string `mapstructure:"image_model"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

// EmailConfig holds email provider configuration. An empty APIKey degrades
// notification dispatch to a logged no-op.
type EmailConfig struct {
	APIBaseURL  string `mapstructure:"api_base_url"`
	APIKey      string `mapstructure:"api_key"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	BurstSize      int  `mapstructure:"burst_size"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/televisit")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "televisit")
	viper.SetDefault("database.user", "televisit")
	viper.SetDefault("database.ssl_mode", "require")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// JWT defaults
	viper.SetDefault("jwt.access_token_ttl", 3600)
	viper.SetDefault("jwt.refresh_token_ttl", 86400)
	viper.SetDefault("jwt.issuer", "televisit")
	viper.SetDefault("jwt.audience", "televisit-users")

	// Payment defaults
	viper.SetDefault("payment.api_base_url", "https://api.stripe.com/v1")
	viper.SetDefault("payment.success_url", "http://localhost:3000/payment/success")
	viper.SetDefault("payment.cancel_url", "http://localhost:3000/payment/cancel")
	viper.SetDefault("payment.mock_price_ref", "price_mock")
	viper.SetDefault("payment.allow_mock", false)
	viper.SetDefault("payment.request_timeout", 15)

	// AI defaults
	viper.SetDefault("ai.endpoint", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.image_model", "dall-e-3")
	viper.SetDefault("ai.request_timeout", 60)

	// Email defaults
	viper.SetDefault("email.from_address", "no-reply@televisit.local")
	viper.SetDefault("email.from_name", "Televisit")

	// Rate limiting defaults
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_min", 100)
	viper.SetDefault("rate_limit.burst_size", 10)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.JWT.SecretKey = jwtSecret
	}

	if paymentKey := os.Getenv("PAYMENT_SECRET_KEY"); paymentKey != "" {
		config.Payment.SecretKey = paymentKey
	}

	if allowMock := os.Getenv("PAYMENT_ALLOW_MOCK"); allowMock != "" {
		config.Payment.AllowMock = allowMock == "true" || allowMock == "1"
	}

	if aiKey := os.Getenv("AI_API_KEY"); aiKey != "" {
		config.AI.APIKey = aiKey
	}

	if emailKey := os.Getenv("EMAIL_API_KEY"); emailKey != "" {
		config.Email.APIKey = emailKey
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.JWT.SecretKey == "" {
		return fmt.Errorf("JWT secret key is required")
	}

	if config.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	if config.Payment.SecretKey == "" && !config.Payment.AllowMock {
		return fmt.Errorf("payment secret key is required unless the mock payment path is enabled")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	return nil
}
