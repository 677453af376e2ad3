package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Geocoding GeocodingConfig `mapstructure:"geocoding"`
	Playback  PlaybackConfig  `mapstructure:"playback"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Prefix  string `mapstructure:"prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// RoutingConfig configures the OSRM routing client.
type RoutingConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Profile     string        `mapstructure:"profile"`
	Geometry    string        `mapstructure:"geometry"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// GeocodingConfig configures the Nominatim search client.
type GeocodingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	Limit          int           `mapstructure:"limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type PlaybackConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	MinSpeedKmh        float64       `mapstructure:"min_speed_kmh"`
	MaxSpeedKmh        float64       `mapstructure:"max_speed_kmh"`
	DefaultSpeedKmh    float64       `mapstructure:"default_speed_kmh"`
	NoticeTTL          time.Duration `mapstructure:"notice_ttl"`
	CameraOffsetMeters float64       `mapstructure:"camera_offset_meters"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TRIPSIM_ROUTING_BASE_URL → routing.base_url
	v.SetEnvPrefix("TRIPSIM")
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

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tripsim")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tripsim")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.prefix", "tripsim:")

	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("routing.base_url", "https://router.project-osrm.org")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.geometry", "geojson")
	v.SetDefault("routing.timeout", 10*time.Second)
	v.SetDefault("routing.max_attempts", 3)
	v.SetDefault("routing.cache_ttl", 10*time.Minute)

	v.SetDefault("geocoding.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoding.user_agent", "tripsim/1.0")
	v.SetDefault("geocoding.accept_language", "en")
	v.SetDefault("geocoding.limit", 5)
	v.SetDefault("geocoding.timeout", 10*time.Second)
	v.SetDefault("geocoding.max_attempts", 2)
	v.SetDefault("geocoding.cache_ttl", 24*time.Hour)

	v.SetDefault("playback.tick_interval", 100*time.Millisecond)
	v.SetDefault("playback.min_speed_kmh", 40.0)
	v.SetDefault("playback.max_speed_kmh", 700.0)
	v.SetDefault("playback.default_speed_kmh", 80.0)
	v.SetDefault("playback.notice_ttl", 4*time.Second)
	v.SetDefault("playback.camera_offset_meters", 300.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if c.Routing.BaseURL == "" {
		errs = append(errs, "routing.base_url is required")
	}
	if c.Routing.Geometry != "geojson" && c.Routing.Geometry != "polyline" {
		errs = append(errs, fmt.Sprintf("routing.geometry must be geojson or polyline, got %q", c.Routing.Geometry))
	}
	if c.Routing.Timeout <= 0 {
		errs = append(errs, "routing.timeout must be positive")
	}
	if c.Routing.MaxAttempts < 1 {
		errs = append(errs, "routing.max_attempts must be at least 1")
	}
	if c.Geocoding.BaseURL == "" {
		errs = append(errs, "geocoding.base_url is required")
	}
	if c.Geocoding.UserAgent == "" {
		errs = append(errs, "geocoding.user_agent is required")
	}
	if c.Geocoding.Limit < 1 {
		errs = append(errs, "geocoding.limit must be at least 1")
	}

	p := c.Playback
	if p.TickInterval <= 0 {
		errs = append(errs, "playback.tick_interval must be positive")
	}
	if p.MinSpeedKmh <= 0 || p.MaxSpeedKmh < p.MinSpeedKmh {
		errs = append(errs, fmt.Sprintf("playback speed range invalid: %.0f-%.0f km/h", p.MinSpeedKmh, p.MaxSpeedKmh))
	} else if p.DefaultSpeedKmh < p.MinSpeedKmh || p.DefaultSpeedKmh > p.MaxSpeedKmh {
		errs = append(errs, fmt.Sprintf("playback.default_speed_kmh must be within %.0f-%.0f", p.MinSpeedKmh, p.MaxSpeedKmh))
	}
	if p.NoticeTTL <= 0 {
		errs = append(errs, "playback.notice_ttl must be positive")
	}
	if p.CameraOffsetMeters < 0 {
		errs = append(errs, "playback.camera_offset_meters must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
