package config

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Timeplus TimeplusConfig `mapstructure:"timeplus"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	SMS      SMSConfig      `mapstructure:"sms"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	AllowedOrigins  string `mapstructure:"allowedOrigins"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
}

// EngineConfig bounds the sweep loop and dispatch behavior
type EngineConfig struct {
	SweepIntervalSeconds     int `mapstructure:"sweepIntervalSeconds"`
	SweepDeadlineSeconds     int `mapstructure:"sweepDeadlineSeconds"`
	Workers                  int `mapstructure:"workers"`
	ChannelRetryAttempts     int `mapstructure:"channelRetryAttempts"`
	MaxUnfilteredCatalogSize int `mapstructure:"maxUnfilteredCatalogSize"`
	MetricsEverySweeps       int `mapstructure:"metricsEverySweeps"`
}

// SweepInterval returns the configured interval as a duration.
func (e EngineConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalSeconds) * time.Second
}

// SweepDeadline returns the configured soft deadline as a duration.
func (e EngineConfig) SweepDeadline() time.Duration {
	return time.Duration(e.SweepDeadlineSeconds) * time.Second
}

// TimeplusConfig holds the Timeplus connection configuration
type TimeplusConfig struct {
	Address   string `mapstructure:"address"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Workspace string `mapstructure:"workspace"`
}

// NATSConfig holds the push-channel broker configuration
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// KafkaConfig holds the feedback topic configuration
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"groupId"`
	Enabled bool     `mapstructure:"enabled"`
}

// SMTPConfig holds the email relay configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Enabled  bool   `mapstructure:"enabled"`
}

// SMSConfig holds the SMS gateway configuration
type SMSConfig struct {
	GatewayURL     string `mapstructure:"gatewayUrl"`
	APIKey         string `mapstructure:"apiKey"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
	Enabled        bool   `mapstructure:"enabled"`
}

// LoadConfig loads the application configuration from file or environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowedOrigins", "*")
	viper.SetDefault("server.shutdownTimeout", 10)
	viper.SetDefault("engine.sweepIntervalSeconds", 300)
	viper.SetDefault("engine.sweepDeadlineSeconds", 240)
	viper.SetDefault("engine.workers", 4)
	viper.SetDefault("engine.channelRetryAttempts", 2)
	viper.SetDefault("engine.maxUnfilteredCatalogSize", 1000)
	viper.SetDefault("engine.metricsEverySweeps", 12)
	viper.SetDefault("timeplus.address", "localhost:8464")
	viper.SetDefault("timeplus.workspace", "default")
	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.enabled", true)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "alert-feedback")
	viper.SetDefault("kafka.groupId", "alert-engine")
	viper.SetDefault("kafka.enabled", true)
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.enabled", false)
	viper.SetDefault("sms.timeoutSeconds", 10)
	viper.SetDefault("sms.enabled", false)

	// Allow environment variables to override config file
	viper.SetEnvPrefix("DEALRADAR")
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
