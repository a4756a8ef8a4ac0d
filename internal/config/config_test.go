package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		RPC: RPCConfig{ReadURL: "https://rpc.example", WSURL: "wss://rpc.example"},
		Pools: []PoolConfig{{
			Pair:                      "jup/sol",
			Address:                   "FpjYwNjCStVE2Rvk9yVZsV46YwgNTFjp7ktJUDcZdyyk",
			PriceFeeds:                []string{"0xaa", "0xbb"},
			PriceRangeDeltaBps:        200,
			InventorySkewThresholdBps: 500,
			RebalanceThresholdBps:     5000,
			MaxRebalanceSlippageBps:   50,
		}},
	}
}

func TestDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Log.Level != "info" {
		t.Fatalf("expected info log level, got %q", cfg.Log.Level)
	}
	if cfg.RPC.ConfirmTimeout != 60*time.Second {
		t.Fatalf("expected 60s confirm timeout, got %v", cfg.RPC.ConfirmTimeout)
	}
	if cfg.RPC.WriteURL != cfg.RPC.ReadURL {
		t.Fatalf("expected write url default to read url, got %q", cfg.RPC.WriteURL)
	}
	if cfg.Feed.MaxReconnects != 5 {
		t.Fatalf("expected 5 max reconnects, got %d", cfg.Feed.MaxReconnects)
	}
	if cfg.Pools[0].Shape != "spot" {
		t.Fatalf("expected spot shape default, got %q", cfg.Pools[0].Shape)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRequiresPools(t *testing.T) {
	cfg := validConfig()
	cfg.Pools = nil
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing pools")
	}
}

func TestValidateFeedCount(t *testing.T) {
	cfg := validConfig()
	cfg.Pools[0].PriceFeeds = []string{"0xaa", "0xbb", "0xcc"}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for 3 price feeds")
	}
	cfg.Pools[0].PriceFeeds = nil
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for 0 price feeds")
	}
}

func TestValidateShape(t *testing.T) {
	cfg := validConfig()
	cfg.Pools[0].Shape = "triangle"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown shape")
	}
}

func TestValidateTelemetryToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for enabled telemetry without token")
	}
}

func TestValidateThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Pools[0].RebalanceThresholdBps = 0
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for zero rebalance threshold")
	}
}
