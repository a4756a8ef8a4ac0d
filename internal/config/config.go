package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	RPC       RPCConfig       `yaml:"rpc"`
	Feed      FeedConfig      `yaml:"feed"`
	Pool      PoolAPIConfig   `yaml:"pool_api"`
	Swap      SwapConfig      `yaml:"swap"`
	State     StateConfig     `yaml:"state"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Pools     []PoolConfig    `yaml:"pools"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RPCConfig struct {
	ReadURL        string        `yaml:"read_url"`
	WriteURL       string        `yaml:"write_url"`
	WSURL          string        `yaml:"ws_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

type FeedConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxReconnects  int           `yaml:"max_reconnects"`
}

type PoolAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SwapConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TelemetryConfig struct {
	Enabled  bool           `yaml:"enabled"`
	URL      string         `yaml:"url"`
	Token    string         `yaml:"token"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Schema  string `yaml:"schema"`
}

type AlertsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// PoolConfig describes one managed liquidity pool. Thresholds are basis points.
type PoolConfig struct {
	Pair                      string   `yaml:"pair"`
	Address                   string   `yaml:"address"`
	PriceFeeds                []string `yaml:"price_feeds"`
	PriceRangeDeltaBps        int      `yaml:"price_range_delta_bps"`
	InventorySkewThresholdBps int      `yaml:"inventory_skew_threshold_bps"`
	RebalanceThresholdBps     int      `yaml:"rebalance_threshold_bps"`
	MaxRebalanceSlippageBps   int      `yaml:"max_rebalance_slippage_bps"`
	Shape                     string   `yaml:"shape"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = 10 * time.Second
	}
	if cfg.RPC.ConfirmTimeout == 0 {
		cfg.RPC.ConfirmTimeout = 60 * time.Second
	}
	if cfg.RPC.WriteURL == "" {
		cfg.RPC.WriteURL = cfg.RPC.ReadURL
	}
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = "wss://hermes.pyth.network/ws"
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = time.Second
	}
	if cfg.Feed.MaxReconnects == 0 {
		cfg.Feed.MaxReconnects = 5
	}
	if cfg.Pool.BaseURL == "" {
		cfg.Pool.BaseURL = "https://dlmm-api.meteora.ag"
	}
	if cfg.Pool.Timeout == 0 {
		cfg.Pool.Timeout = 10 * time.Second
	}
	if cfg.Swap.BaseURL == "" {
		cfg.Swap.BaseURL = "https://lite-api.jup.ag/ultra/v1"
	}
	if cfg.Swap.Timeout == 0 {
		cfg.Swap.Timeout = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/dlmm-lp-bot.db"
	}
	if cfg.Telemetry.Postgres.Schema == "" {
		cfg.Telemetry.Postgres.Schema = "public"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	for i := range cfg.Pools {
		pool := &cfg.Pools[i]
		if pool.Shape == "" {
			pool.Shape = "spot"
		}
		if pool.MaxRebalanceSlippageBps == 0 {
			pool.MaxRebalanceSlippageBps = 100
		}
	}
}

func validate(cfg *Config) error {
	if cfg.RPC.ReadURL == "" {
		return errors.New("rpc.read_url is required")
	}
	if cfg.RPC.WSURL == "" {
		return errors.New("rpc.ws_url is required")
	}
	if len(cfg.Pools) == 0 {
		return errors.New("at least one pool is required")
	}
	for i, pool := range cfg.Pools {
		if pool.Pair == "" {
			return fmt.Errorf("pools[%d].pair is required", i)
		}
		if pool.Address == "" {
			return fmt.Errorf("pools[%d].address is required", i)
		}
		if n := len(pool.PriceFeeds); n < 1 || n > 2 {
			return fmt.Errorf("pools[%d].price_feeds must contain 1 or 2 entries, got %d", i, n)
		}
		if pool.PriceRangeDeltaBps <= 0 {
			return fmt.Errorf("pools[%d].price_range_delta_bps must be > 0", i)
		}
		if pool.InventorySkewThresholdBps <= 0 {
			return fmt.Errorf("pools[%d].inventory_skew_threshold_bps must be > 0", i)
		}
		if pool.RebalanceThresholdBps <= 0 {
			return fmt.Errorf("pools[%d].rebalance_threshold_bps must be > 0", i)
		}
		if pool.MaxRebalanceSlippageBps <= 0 {
			return fmt.Errorf("pools[%d].max_rebalance_slippage_bps must be > 0", i)
		}
		switch pool.Shape {
		case "spot", "curve", "bidask":
		default:
			return fmt.Errorf("pools[%d].shape must be spot, curve or bidask, got %q", i, pool.Shape)
		}
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Token == "" {
		return errors.New("telemetry.token is required when telemetry is enabled")
	}
	if cfg.Telemetry.Postgres.Enabled && cfg.Telemetry.Postgres.DSN == "" {
		return errors.New("telemetry.postgres.dsn is required when postgres telemetry is enabled")
	}
	if cfg.Alerts.Enabled && (cfg.Alerts.Token == "" || cfg.Alerts.Channel == "") {
		return errors.New("alerts.token and alerts.channel are required when alerts are enabled")
	}
	return nil
}
