package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("tripsim-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Playback.TickInterval != 100*time.Millisecond {
		t.Errorf("expected 100ms tick, got %v", cfg.Playback.TickInterval)
	}
	if cfg.Playback.MinSpeedKmh != 40 || cfg.Playback.MaxSpeedKmh != 700 || cfg.Playback.DefaultSpeedKmh != 80 {
		t.Errorf("unexpected speed range %+v", cfg.Playback)
	}
	if cfg.Playback.NoticeTTL != 4*time.Second {
		t.Errorf("expected 4s notice ttl, got %v", cfg.Playback.NoticeTTL)
	}
	if cfg.Routing.Geometry != "geojson" || cfg.Routing.MaxAttempts != 3 {
		t.Errorf("unexpected routing config %+v", cfg.Routing)
	}
	if cfg.Telemetry.ServiceName != "tripsim-test" {
		t.Errorf("expected service name default, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRIPSIM_ROUTING_BASE_URL", "http://osrm:5000")
	t.Setenv("TRIPSIM_PLAYBACK_TICK_INTERVAL", "50ms")
	t.Setenv("TRIPSIM_SERVER_PORT", "9090")

	cfg, err := Load("tripsim")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Routing.BaseURL != "http://osrm:5000" {
		t.Errorf("expected env base url, got %q", cfg.Routing.BaseURL)
	}
	if cfg.Playback.TickInterval != 50*time.Millisecond {
		t.Errorf("expected 50ms, got %v", cfg.Playback.TickInterval)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected 9090, got %d", cfg.Server.Port)
	}
}

func validConfig() Config {
	return Config{
		Server:    ServerConfig{Port: 8080, ReadTimeout: 10, WriteTimeout: 10},
		Database:  DatabaseConfig{Enabled: false},
		Routing:   RoutingConfig{BaseURL: "http://osrm", Geometry: "polyline", Timeout: time.Second, MaxAttempts: 1},
		Geocoding: GeocodingConfig{BaseURL: "http://nominatim", UserAgent: "test", Limit: 5},
		Playback: PlaybackConfig{
			TickInterval: 100 * time.Millisecond, MinSpeedKmh: 40, MaxSpeedKmh: 700,
			DefaultSpeedKmh: 80, NoticeTTL: 4 * time.Second, CameraOffsetMeters: 300,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"db enabled without host", func(c *Config) {
			c.Database = DatabaseConfig{Enabled: true, Port: 5432, User: "u", DBName: "d"}
		}, "database.host"},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true }, "nats.url"},
		{"unknown geometry", func(c *Config) { c.Routing.Geometry = "wkt" }, "routing.geometry"},
		{"inverted speeds", func(c *Config) { c.Playback.MaxSpeedKmh = 10 }, "speed range"},
		{"default outside range", func(c *Config) { c.Playback.DefaultSpeedKmh = 900 }, "default_speed_kmh"},
		{"zero tick", func(c *Config) { c.Playback.TickInterval = 0 }, "tick_interval"},
		{"no user agent", func(c *Config) { c.Geocoding.UserAgent = "" }, "user_agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
