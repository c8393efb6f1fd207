package config

import (
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Timeplus   TimeplusConfig   `mapstructure:"timeplus"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Contacts   []models.Contact `mapstructure:"contacts"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	AllowedOrigins  string `mapstructure:"allowedOrigins"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
}

// TimeplusConfig holds the Timeplus connection configuration
type TimeplusConfig struct {
	Address   string `mapstructure:"address"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Workspace string `mapstructure:"workspace"`
}

// RedisConfig holds the Redis connection used for escalation dedupe
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MQTTConfig holds the device-ingestion broker configuration.
// Ingestion over MQTT is optional; an empty broker disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"clientId"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EscalationConfig tunes the emergency escalation workflow
type EscalationConfig struct {
	CountdownSeconds       int    `mapstructure:"countdownSeconds"`       // panic-button grace period
	LocationEndpoint       string `mapstructure:"locationEndpoint"`       // location provider URL
	LocationTimeoutSeconds int    `mapstructure:"locationTimeoutSeconds"` // bound on location capture
	LocationMaxAgeSeconds  int    `mapstructure:"locationMaxAgeSeconds"`  // acceptable cached-fix age
	DedupeTTLMinutes       int    `mapstructure:"dedupeTtlMinutes"`       // dedupe key retention
}

// LoadConfig loads the application configuration from file or environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// .env values become plain environment variables before viper reads them
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("No .env file loaded: %v", err)
	}

	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowedOrigins", "*")
	viper.SetDefault("server.shutdownTimeout", 10)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("escalation.countdownSeconds", 5)
	viper.SetDefault("escalation.locationTimeoutSeconds", 10)
	viper.SetDefault("escalation.locationMaxAgeSeconds", 60)
	viper.SetDefault("escalation.dedupeTtlMinutes", 60)

	// Allow environment variables to override config file
	viper.SetEnvPrefix("VW_ALERT")
	viper.AutomaticEnv()

	// If config file is provided, read it
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			logrus.Warnf("Error reading config file: %v", err)
		}
	}

	// Unmarshal config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
