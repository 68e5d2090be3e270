package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WMS       WMSConfig       `mapstructure:"wms"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	LinesAPI  LinesAPIConfig  `mapstructure:"lines_api"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Session   SessionConfig   `mapstructure:"session"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// LayerConfig names one queryable WMS layer and the style it is drawn with.
type LayerConfig struct {
	Name  string `mapstructure:"name"`
	Style string `mapstructure:"style"`
}

type WMSConfig struct {
	URL            string      `mapstructure:"url"`
	Version        string      `mapstructure:"version"`
	InfoFormat     string      `mapstructure:"info_format"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	Tolerance      int         `mapstructure:"tolerance"`
	MaxFeatures    int         `mapstructure:"max_features"`
	StopsLayer     LayerConfig `mapstructure:"stops_layer"`
	LinesLayer     LayerConfig `mapstructure:"lines_layer"`
}

type ThrottleConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	SpacingMillis int `mapstructure:"spacing_ms"`
}

type LinesAPIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type RoutingConfig struct {
	OSRMURL string `mapstructure:"osrm_url"`
	Profile string `mapstructure:"profile"`
}

type SessionConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("wms.url", "http://localhost:8081/geoserver/wms")
	v.SetDefault("wms.version", "1.1.1")
	v.SetDefault("wms.info_format", "application/json")
	v.SetDefault("wms.timeout_seconds", 15)
	v.SetDefault("wms.tolerance", 8)
	v.SetDefault("wms.max_features", 50)
	v.SetDefault("wms.stops_layer.name", "tsig:parada")
	v.SetDefault("wms.stops_layer.style", "Parada")
	v.SetDefault("wms.lines_layer.name", "tsig:linea")
	v.SetDefault("wms.lines_layer.style", "")
	v.SetDefault("throttle.max_concurrent", 3)
	v.SetDefault("throttle.spacing_ms", 100)
	v.SetDefault("lines_api.base_url", "http://localhost:9090/api")
	v.SetDefault("lines_api.timeout_seconds", 20)
	v.SetDefault("routing.osrm_url", "https://router.project-osrm.org")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("session.ttl_minutes", 30)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: MAPGATE_WMS_URL → wms.url
	v.SetEnvPrefix("MAPGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.WMS.URL == "" {
		errs = append(errs, "wms.url is required")
	}
	if c.WMS.Version != "1.1.1" && c.WMS.Version != "1.3.0" {
		errs = append(errs, fmt.Sprintf("wms.version must be 1.1.1 or 1.3.0, got %q", c.WMS.Version))
	}
	if c.WMS.TimeoutSeconds <= 0 {
		errs = append(errs, "wms.timeout_seconds must be positive")
	}
	if c.WMS.StopsLayer.Name == "" || c.WMS.LinesLayer.Name == "" {
		errs = append(errs, "wms.stops_layer.name and wms.lines_layer.name are required")
	}
	if c.Throttle.MaxConcurrent <= 0 {
		errs = append(errs, "throttle.max_concurrent must be positive")
	}
	if c.Throttle.SpacingMillis < 0 {
		errs = append(errs, "throttle.spacing_ms must not be negative")
	}
	if c.LinesAPI.BaseURL == "" {
		errs = append(errs, "lines_api.base_url is required")
	}
	if c.Session.TTLMinutes <= 0 {
		errs = append(errs, "session.ttl_minutes must be positive")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
