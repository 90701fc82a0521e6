/**
 * @description
 * Configuration management for the connection service. Values come from the
 * environment (optionally seeded from a .env file) and are bound through Viper.
 *
 * @dependencies
 * - github.com/spf13/viper: environment binding and defaults.
 */

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the connection service.
type Config struct {
	ServerPort                          string `mapstructure:"SERVER_PORT"`
	DatabaseURL                         string `mapstructure:"DATABASE_URL"`
	RabbitMQURL                         string `mapstructure:"RABBITMQ_URL"`
	EventsExchange                      string `mapstructure:"EVENTS_EXCHANGE"`
	PaymentEventQueue                   string `mapstructure:"PAYMENT_EVENT_QUEUE"`
	RedisURL                            string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix                string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	ClerkJWKSURL                        string `mapstructure:"CLERK_JWKS_URL"`
	InternalAPIKey                      string `mapstructure:"INTERNAL_API_KEY"`
	ConnectionFeeConfigName             string `mapstructure:"CONNECTION_FEE_CONFIG_NAME"`
	ConnectionRequestRateLimitPerMinute int    `mapstructure:"CONNECTION_REQUEST_RATE_LIMIT_PER_MINUTE"`
	MessageRateLimitPerMinute           int    `mapstructure:"MESSAGE_RATE_LIMIT_PER_MINUTE"`
	PendingPaymentTTLMinutes            int    `mapstructure:"PENDING_PAYMENT_TTL_MINUTES"`
	ConnectionExpiryJobSchedule         string `mapstructure:"CONNECTION_EXPIRY_JOB_SCHEDULE"`
	RefundDispatchJobSchedule           string `mapstructure:"REFUND_DISPATCH_JOB_SCHEDULE"`
	RefundRedispatchAfterMinutes        int    `mapstructure:"REFUND_REDISPATCH_AFTER_MINUTES"`
	LogLevel                            string `mapstructure:"LOG_LEVEL"`
	LogFormat                           string `mapstructure:"LOG_FORMAT"`

	// Warnings lists values that were invalid and replaced by their default.
	Warnings []string `mapstructure:"-"`
}

// PendingPaymentTTL is how long an unpaid connection may hold its slot.
func (c Config) PendingPaymentTTL() time.Duration {
	return time.Duration(c.PendingPaymentTTLMinutes) * time.Minute
}

// RefundRedispatchAfter is how long a refund request may go unanswered before it
// is published again.
func (c Config) RefundRedispatchAfter() time.Duration {
	return time.Duration(c.RefundRedispatchAfterMinutes) * time.Minute
}

// LoadConfig reads configuration from the environment and an optional .env file
// in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENTS_EXCHANGE", "kontent.events")
	viper.SetDefault("PAYMENT_EVENT_QUEUE", "connection_service.payment_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "kontent:rate_limit")
	viper.SetDefault("CONNECTION_FEE_CONFIG_NAME", "DM_FEE_STANDARD")
	viper.SetDefault("CONNECTION_REQUEST_RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("MESSAGE_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("PENDING_PAYMENT_TTL_MINUTES", 60)
	viper.SetDefault("CONNECTION_EXPIRY_JOB_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("REFUND_DISPATCH_JOB_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("REFUND_REDISPATCH_AFTER_MINUTES", 30)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("PAYMENT_EVENT_QUEUE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CONNECTION_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "CONNECTION_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("CONNECTION_FEE_CONFIG_NAME")
	_ = viper.BindEnv("CONNECTION_REQUEST_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("MESSAGE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PENDING_PAYMENT_TTL_MINUTES")
	_ = viper.BindEnv("CONNECTION_EXPIRY_JOB_SCHEDULE")
	_ = viper.BindEnv("REFUND_DISPATCH_JOB_SCHEDULE")
	_ = viper.BindEnv("REFUND_REDISPATCH_AFTER_MINUTES")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("LOG_FORMAT")

	// The .env file is optional; the environment always applies.
	_ = viper.ReadInConfig()

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "kontent:rate_limit"
	}
	config.ConnectionFeeConfigName = strings.TrimSpace(config.ConnectionFeeConfigName)
	if config.ConnectionFeeConfigName == "" {
		config.ConnectionFeeConfigName = "DM_FEE_STANDARD"
	}
	if config.ConnectionRequestRateLimitPerMinute < 0 {
		config.coerce("CONNECTION_REQUEST_RATE_LIMIT_PER_MINUTE", config.ConnectionRequestRateLimitPerMinute, 0)
		config.ConnectionRequestRateLimitPerMinute = 0
	}
	if config.MessageRateLimitPerMinute < 0 {
		config.coerce("MESSAGE_RATE_LIMIT_PER_MINUTE", config.MessageRateLimitPerMinute, 0)
		config.MessageRateLimitPerMinute = 0
	}
	if config.PendingPaymentTTLMinutes < 0 {
		config.coerce("PENDING_PAYMENT_TTL_MINUTES", config.PendingPaymentTTLMinutes, 0)
		config.PendingPaymentTTLMinutes = 0
	}
	if config.RefundRedispatchAfterMinutes <= 0 {
		config.coerce("REFUND_REDISPATCH_AFTER_MINUTES", config.RefundRedispatchAfterMinutes, 30)
		config.RefundRedispatchAfterMinutes = 30
	}
	switch strings.ToLower(strings.TrimSpace(config.LogLevel)) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		config.coerce("LOG_LEVEL", config.LogLevel, "info")
		config.LogLevel = "info"
	}
	switch strings.ToLower(strings.TrimSpace(config.LogFormat)) {
	case "json", "text":
	default:
		config.coerce("LOG_FORMAT", config.LogFormat, "json")
		config.LogFormat = "json"
	}

	if strings.TrimSpace(config.DatabaseURL) == "" {
		return config, fmt.Errorf("DATABASE_URL must be configured")
	}
	if config.InternalAPIKey == "" {
		return config, fmt.Errorf("INTERNAL_API_KEY must be configured")
	}
	return config, nil
}

func (c *Config) coerce(key string, got, fallback interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%v is invalid; using %v", key, got, fallback))
}
