package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	defaultCameraInterval   = 5 * time.Second
	defaultIncidentInterval = 5 * time.Second
	defaultTimelineInterval = 3 * time.Second
	defaultGatewayInterval  = 15 * time.Second
	defaultConnectTimeout   = 8 * time.Second
)

// Config stores runtime settings loaded from environment variables.
type Config struct {
	HTTPAddr      string         `env:"HTTP_ADDR" envDefault:":8099"`
	DBPath        string         `env:"DB_PATH" envDefault:"/data/console_sync.db"`
	LogLevelRaw   string         `env:"LOG_LEVEL" envDefault:"info"`
	AlwaysVisible bool           `env:"VISIBILITY_ALWAYS" envDefault:"false"`
	NotifyDesktop bool           `env:"NOTIFY_DESKTOP" envDefault:"false"`
	API           APIConfig      `envPrefix:"API_"`
	MQTT          MQTTConfig     `envPrefix:"MQTT_"`
	Poll          PollConfig     `envPrefix:"POLL_"`
	Timeline      TimelineConfig `envPrefix:"TIMELINE_"`
	Gateway       GatewayConfig  `envPrefix:"GATEWAY_"`

	// LogLevel is derived from LogLevelRaw by Load.
	LogLevel slog.Level
}

// APIConfig points at the external REST backend.
type APIConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:8000/api"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Token   string        `env:"TOKEN"`
}

// MQTTConfig holds broker URL parts and credentials.
type MQTTConfig struct {
	Protocol       string        `env:"PROTOCOL" envDefault:"ws"`
	Host           string        `env:"HOST" envDefault:"localhost"`
	Port           int           `env:"PORT" envDefault:"9001"`
	Path           string        `env:"PATH" envDefault:"/mqtt"`
	Username       string        `env:"USERNAME"`
	Password       string        `env:"PASSWORD"`
	ClientPrefix   string        `env:"CLIENT_PREFIX" envDefault:"console-sync"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"8s"`
}

// PollConfig controls the cadence of every background stream.
type PollConfig struct {
	CameraInterval   time.Duration `env:"CAMERA_INTERVAL" envDefault:"5s"`
	CameraPageSize   int           `env:"CAMERA_PAGE_SIZE" envDefault:"30"`
	IncidentInterval time.Duration `env:"INCIDENTS_INTERVAL" envDefault:"5s"`
	IncidentLimit    int           `env:"INCIDENTS_LIMIT" envDefault:"20"`
	TimelineInterval time.Duration `env:"TIMELINE_INTERVAL" envDefault:"3s"`
	GatewayInterval  time.Duration `env:"GATEWAY_INTERVAL" envDefault:"15s"`
}

// TimelineConfig tunes the incident timeline reconciler.
type TimelineConfig struct {
	PageSize        int     `env:"PAGE_SIZE" envDefault:"300"`
	BottomThreshold float64 `env:"BOTTOM_THRESHOLD" envDefault:"80"`
}

// GatewayConfig holds presence heuristics for gateways.
type GatewayConfig struct {
	OnlineWindow     time.Duration `env:"ONLINE_WINDOW" envDefault:"2m"`
	OfflineThreshold time.Duration `env:"OFFLINE_THRESHOLD" envDefault:"24h"`
	DebouncePolls    int           `env:"DEBOUNCE_POLLS" envDefault:"2"`
}

// Load builds Config from environment variables using stable defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	cfg.normalize()
	return cfg, nil
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

// BrokerURL composes {protocol}://{host}[:port][path].
func (c MQTTConfig) BrokerURL() string {
	protocol := strings.TrimSuffix(strings.TrimSpace(c.Protocol), "://")
	if protocol == "" {
		protocol = "ws"
	}
	host := strings.TrimSpace(c.Host)
	if c.Port > 0 {
		host = fmt.Sprintf("%s:%d", host, c.Port)
	}
	path := strings.TrimSpace(c.Path)
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	switch protocol {
	case "ws", "wss":
	default:
		// tcp/ssl/mqtt brokers have no path component.
		path = ""
	}
	return protocol + "://" + host + path
}

func (c *Config) normalize() {
	c.Poll.CameraInterval = positiveOr(c.Poll.CameraInterval, defaultCameraInterval)
	c.Poll.IncidentInterval = positiveOr(c.Poll.IncidentInterval, defaultIncidentInterval)
	c.Poll.TimelineInterval = positiveOr(c.Poll.TimelineInterval, defaultTimelineInterval)
	c.Poll.GatewayInterval = positiveOr(c.Poll.GatewayInterval, defaultGatewayInterval)
	c.MQTT.ConnectTimeout = positiveOr(c.MQTT.ConnectTimeout, defaultConnectTimeout)
	if c.Poll.CameraPageSize <= 0 {
		c.Poll.CameraPageSize = 30
	}
	if c.Poll.IncidentLimit <= 0 {
		c.Poll.IncidentLimit = 20
	}
	if c.Timeline.PageSize <= 0 {
		c.Timeline.PageSize = 300
	}
	if c.Timeline.BottomThreshold < 0 {
		c.Timeline.BottomThreshold = 80
	}
	if c.Gateway.DebouncePolls <= 0 {
		c.Gateway.DebouncePolls = 1
	}
}

func positiveOr(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
