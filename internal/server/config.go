package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8443)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/schoolgate.db")

	// Module defaults
	v.SetDefault("modules.auth.enabled", true)
	v.SetDefault("modules.auth.access_token_ttl", "15m")
	v.SetDefault("modules.auth.refresh_token_ttl", "168h")
	v.SetDefault("modules.devices.enabled", true)
	v.SetDefault("modules.audit.enabled", true)
	v.SetDefault("modules.audit.retention_period", "2160h")
	v.SetDefault("modules.audit.prune_interval", "24h")
	v.SetDefault("modules.transmit.enabled", true)
	v.SetDefault("modules.monitor.enabled", true)
	v.SetDefault("modules.monitor.check_interval", "60s")
	v.SetDefault("modules.monitor.probe_timeout", "5s")
	v.SetDefault("modules.monitor.max_workers", 8)
	v.SetDefault("modules.ws.enabled", true)
	v.SetDefault("modules.webhook.enabled", true)
	v.SetDefault("modules.webhook.timeout", "10s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("schoolgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/schoolgate")
	}

	// Environment variable support: SG_SERVER_PORT=9443
	v.SetEnvPrefix("SG")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
