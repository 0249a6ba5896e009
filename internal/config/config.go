package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port" envconfig:"SERVER_PORT"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" envconfig:"SERVER_TIMEOUT_SECONDS"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host" envconfig:"DB_HOST"`
	Port         int    `mapstructure:"port" envconfig:"DB_PORT"`
	User         string `mapstructure:"user" envconfig:"DB_USER"`
	Password     string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name         string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode      string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
	MaxOpenConns int    `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url" envconfig:"REDIS_URL"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int    `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username string `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string `mapstructure:"from" envconfig:"SMTP_FROM"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret" envconfig:"JWT_SECRET"`
	ExpiryHours int    `mapstructure:"expiry_hours" envconfig:"JWT_EXPIRY_HOURS"`
}

type VerifyConfig struct {
	DNSTimeoutSeconds  int  `mapstructure:"dns_timeout_seconds"`
	HTMLTimeoutSeconds int  `mapstructure:"html_timeout_seconds"`
	MetaTimeoutSeconds int  `mapstructure:"meta_timeout_seconds"`
	AllowPrivate       bool `mapstructure:"allow_private" envconfig:"VERIFY_ALLOW_PRIVATE"`
	DomainLimit        int  `mapstructure:"domain_limit" envconfig:"VERIFY_DOMAIN_LIMIT"`
}

type SchedulerConfig struct {
	RevalidateIntervalHours int `mapstructure:"revalidate_interval_hours"`
	ExpiryIntervalHours     int `mapstructure:"expiry_interval_hours"`
	CertOffsetMinutes       int `mapstructure:"cert_offset_minutes"`
	Concurrency             int `mapstructure:"concurrency" envconfig:"SCHEDULER_CONCURRENCY"`
	RetryAttempts           int `mapstructure:"retry_attempts"`
	RetryDelaySeconds       int `mapstructure:"retry_delay_seconds"`
}

func (c SchedulerConfig) RevalidateInterval() time.Duration {
	return time.Duration(c.RevalidateIntervalHours) * time.Hour
}

func (c SchedulerConfig) ExpiryInterval() time.Duration {
	return time.Duration(c.ExpiryIntervalHours) * time.Hour
}

func (c SchedulerConfig) CertOffset() time.Duration {
	return time.Duration(c.CertOffsetMinutes) * time.Minute
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment wins over the file for anything deploy-specific.
	if err := envconfig.Process("domainstack", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment overrides: %w", err)
	}

	return &config, nil
}
