// Package config provides configuration management for the collector.
// It supports environment variables, config files (YAML/JSON), and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the collector.
type Config struct {
	// Environment is the deployment environment (development, staging, production)
	Environment string `mapstructure:"environment"`

	// SeedPath is the path to the optional device registry seed file
	SeedPath string `mapstructure:"seed_path"`

	// Store configuration
	Store StoreConfig `mapstructure:"store"`

	// HTTP server configuration
	HTTP HTTPConfig `mapstructure:"http"`

	// Modbus configuration
	Modbus ModbusConfig `mapstructure:"modbus"`

	// OPC UA configuration
	OPCUA OPCUAConfig `mapstructure:"opcua"`

	// Polling configuration
	Polling PollingConfig `mapstructure:"polling"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig holds sample store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ModbusConfig holds Modbus reader configuration.
type ModbusConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	SlaveID int           `mapstructure:"slave_id"`
}

// OPCUAConfig holds OPC UA reader configuration.
type OPCUAConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollingConfig holds poller configuration.
type PollingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load loads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Config file search paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/collector")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, will use defaults and env vars
	}

	v.SetEnvPrefix("COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("seed_path", "./config/devices.yaml")

	v.SetDefault("store.path", "./data/collector.db")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)

	v.SetDefault("modbus.timeout", 5*time.Second)
	v.SetDefault("modbus.slave_id", 1)

	v.SetDefault("opcua.timeout", 10*time.Second)

	v.SetDefault("polling.interval", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("environment", "ENVIRONMENT")
	_ = v.BindEnv("seed_path", "SEED_PATH")

	_ = v.BindEnv("store.path", "STORE_PATH")

	_ = v.BindEnv("http.port", "HTTP_PORT")

	_ = v.BindEnv("polling.interval", "POLL_INTERVAL")

	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.Modbus.SlaveID <= 0 || c.Modbus.SlaveID > 247 {
		return fmt.Errorf("invalid modbus slave id: %d", c.Modbus.SlaveID)
	}
	return nil
}
