package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func NewConfig(version string) *Config {
	return &Config{Version: version}
}

func (c *Config) Load(filename, path string) error {
	v := viper.New()
	v.SetConfigName(filename)
	v.AddConfigPath(path)
	v.SetConfigType("yml")
	v.SetEnvPrefix("jammonitor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		return err
	}

	err = v.Unmarshal(c)
	if err != nil {
		return err
	}
	if err = c.Validate(); err != nil {
		return err
	}
	c.Logger, err = getLogger(c.Logging, c.Version)

	return err
}

// setDefaults mirrors the dashboard cadences so a sparse config still runs sane timers
func setDefaults(v *viper.Viper) {
	v.SetDefault("components.telemetry", true)
	v.SetDefault("components.policy", true)
	v.SetDefault("components.overview", true)
	v.SetDefault("components.exporter", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")


	v.SetDefault("telemetry.source", SourceBackend)
	v.SetDefault("telemetry.collect_interval", 3*time.Second)
	v.SetDefault("telemetry.discovery_interval", time.Minute)
	v.SetDefault("telemetry.history_size", 120)
	v.SetDefault("telemetry.ping_timeout", 2*time.Second)
	v.SetDefault("telemetry.ping_targets.inet", "1.1.1.1")
	v.SetDefault("telemetry.wan_pattern", `^(lan[0-9]+|sfp-lan|tun0)$`)
	v.SetDefault("telemetry.ignore_pattern", `^lo$|docker|veth`)
	v.SetDefault("telemetry.tunnel_interface", "tun0")
	v.SetDefault("telemetry.netdev_path", "/proc/net/dev")
	v.SetDefault("telemetry.meminfo_path", "/proc/meminfo")
	v.SetDefault("telemetry.loadavg_path", "/proc/loadavg")
	v.SetDefault("telemetry.stat_path", "/proc/stat")
	v.SetDefault("telemetry.uptime_path", "/proc/uptime")

	v.SetDefault("policy.poll_interval", 5*time.Second)
	v.SetDefault("policy.window", 2*time.Minute)
	v.SetDefault("policy.settle_delay", 2*time.Second)
	v.SetDefault("policy.refresh_interval", 5*time.Second)

	v.SetDefault("persistence.type", StoreMemory)
	v.SetDefault("persistence.key_prefix", "jammonitor")
	v.SetDefault("persistence.snapshot_interval", 10*time.Second)

	v.SetDefault("api.addr", "127.0.0.1:8088")
	v.SetDefault("api.intent_rate", 30)

	v.SetDefault("display_interval", 5*time.Second)
	v.SetDefault("initial_view", "overview")
	v.SetDefault("prom_server.addr", "127.0.0.1:9108")
}

// Validate rejects configs that would start broken timers or unreachable backends
func (c *Config) Validate() error {
	var err error
	if c.Backend == nil || c.Backend.BaseURL == "" {
		err = errors.Join(err, errors.New("backend.base_url is required"))
	} else if _, perr := url.ParseRequestURI(c.Backend.BaseURL); perr != nil {
		err = errors.Join(err, fmt.Errorf("backend.base_url: %w", perr))
	}
	if t := c.Telemetry; t != nil {
		if t.Source != SourceBackend && t.Source != SourceLocal {
			err = errors.Join(err, fmt.Errorf("telemetry.source must be %q or %q, got %q", SourceBackend, SourceLocal, t.Source))
		}
		if t.CollectInterval <= 0 || t.HistorySize <= 0 {
			err = errors.Join(err, errors.New("telemetry.collect_interval and telemetry.history_size must be positive"))
		}
		for key, pattern := range map[string]string{"wan_pattern": t.WANPattern, "ignore_pattern": t.IgnorePattern} {
			if _, rerr := regexp.Compile(pattern); rerr != nil {
				err = errors.Join(err, fmt.Errorf("telemetry.%s: %w", key, rerr))
			}
		}
	}
	if p := c.Policy; p != nil && (p.PollInterval <= 0 || p.Window <= 0 || p.RefreshInterval <= 0) {
		err = errors.Join(err, errors.New("policy intervals must be positive"))
	}
	if p := c.Persistence; p != nil {
		switch p.Type {
		case StoreMemory, StoreRedis:
		case StoreBadger:
			if p.Path == "" {
				err = errors.Join(err, errors.New("persistence.path is required for badger"))
			}
		default:
			err = errors.Join(err, fmt.Errorf("unknown persistence.type %q", p.Type))
		}
		if p.SnapshotInterval <= 0 {
			err = errors.Join(err, errors.New("persistence.snapshot_interval must be positive"))
		}
	}
	if c.DisplayInterval <= 0 {
		err = errors.Join(err, errors.New("display_interval must be positive"))
	}
	return err
}

// getLogger spawns simple logger by the config
func getLogger(cfg *LoggingConfig, version string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		lvl = zap.NewAtomicLevel() // fallback to level info
	}
	config := zap.Config{
		Encoding:         cfg.Format,
		Level:            lvl,
		OutputPaths:      []string{cfg.Output},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    map[string]interface{}{"version": version},
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
	}
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}
