package config

import (
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Logger           *zap.Logger `mapstructure:"-"`
	Components       *ComponentsConfig
	Backend          *BackendConfig
	Telemetry        *TelemetryConfig
	Policy           *PolicyConfig
	Persistence      *PersistenceConfig
	API              *APIConfig `mapstructure:"api"`
	Logging          *LoggingConfig
	Version          string                  `mapstructure:"-"`
	DisplayInterval  time.Duration           `mapstructure:"display_interval"`
	InitialView      string                  `mapstructure:"initial_view"`
	PrometheusServer *PrometheusServerConfig `mapstructure:"prom_server"`
}

type ComponentsConfig struct {
	Telemetry bool
	Policy    bool
	Overview  bool
	Exporter  bool
}

type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// BackendConfig points at the router admin endpoints (ping, network_info, wan_policy, ...)
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds each request. Zero leaves it to the backend.
	Timeout time.Duration
}

const (
	SourceBackend = "backend"
	SourceLocal   = "local"
)

type TelemetryConfig struct {
	Source            string
	CollectInterval   time.Duration `mapstructure:"collect_interval"`
	DiscoveryInterval time.Duration `mapstructure:"discovery_interval"`
	HistorySize       int           `mapstructure:"history_size"`
	PingTimeout       time.Duration `mapstructure:"ping_timeout"`
	PingTargets       PingTargets   `mapstructure:"ping_targets"`
	WANPattern        string        `mapstructure:"wan_pattern"`
	IgnorePattern     string        `mapstructure:"ignore_pattern"`
	TunnelInterface   string        `mapstructure:"tunnel_interface"`
	NetdevPath        string        `mapstructure:"netdev_path"`
	MeminfoPath       string        `mapstructure:"meminfo_path"`
	LoadavgPath       string        `mapstructure:"loadavg_path"`
	StatPath          string        `mapstructure:"stat_path"`
	UptimePath        string        `mapstructure:"uptime_path"`
}

type PingTargets struct {
	Inet   string
	VPS    string `mapstructure:"vps"`
	Tunnel string
}

type PolicyConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Window          time.Duration
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

const (
	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

type PersistenceConfig struct {
	Type             string
	Path             string
	RedisAddr        string        `mapstructure:"redis_addr"`
	RedisDB          int           `mapstructure:"redis_db"`
	KeyPrefix        string        `mapstructure:"key_prefix"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

type APIConfig struct {
	Addr           string
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	IntentRate     int      `mapstructure:"intent_rate"`
}

type PrometheusServerConfig struct {
	Addr string
}
