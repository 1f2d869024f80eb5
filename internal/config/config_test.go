package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
log:
  level: debug
  format: json
telegram:
  bot_token: file-token
  recipients:
    pricing-team: "-1001"
kafka:
  brokers: [kafka-1:9092]
pricing:
  stale_after: 2h
  gap_threshold: 0.15
alerts:
  window: 10m
elasticity:
  lookback_days: 120
  category_seeds:
    audio:
      coefficient: -1.8
      lower: -2.4
      upper: -1.2
      confidence: 60
seasonality:
  monthly:
    12: 1.4
  promotions:
    - name: black-friday
      product_ids: [sku-1]
      start: 2026-11-27T00:00:00Z
      end: 2026-11-30T00:00:00Z
      lift: 1.5
products:
  - id: sku-1
    category_id: audio
    cost: 70
    base_price: 100
    constraints:
      min_margin_pct: 10
      max_discount_pct: 25
rules:
  - id: match-lowest
    owner: pricing-team
    product_ids: [sku-1]
    enabled: true
    priority: 10
    action:
      kind: match_competitor
      match: lowest
`

func TestLoad(t *testing.T) {
	path := writeTempFile(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if cfg.Telegram.Recipients["pricing-team"] != "-1001" {
		t.Errorf("Recipients = %v", cfg.Telegram.Recipients)
	}
	if cfg.Pricing.StaleAfter != 2*time.Hour {
		t.Errorf("StaleAfter = %v, want 2h", cfg.Pricing.StaleAfter)
	}
	if cfg.Alerts.Window != 10*time.Minute {
		t.Errorf("Alerts.Window = %v, want 10m", cfg.Alerts.Window)
	}
	if seed := cfg.Elasticity.CategorySeeds["audio"]; seed.Coefficient != -1.8 || seed.Confidence != 60 {
		t.Errorf("audio seed = %+v", seed)
	}
	if cfg.Seasonality.Monthly[12] != 1.4 {
		t.Errorf("Monthly[12] = %v, want 1.4", cfg.Seasonality.Monthly[12])
	}
	if len(cfg.Seasonality.Promotions) != 1 || cfg.Seasonality.Promotions[0].Lift != 1.5 {
		t.Errorf("Promotions = %+v", cfg.Seasonality.Promotions)
	}
	if len(cfg.Products) != 1 || cfg.Products[0].Constraints.MaxDiscountPct != 25 {
		t.Errorf("Products = %+v", cfg.Products)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Combinator != "AND" {
		t.Errorf("Rules = %+v, want one rule with AND combinator", cfg.Rules)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load of a missing file should not fail: %v", err)
	}

	if cfg.Kafka.EventsTopic != DefaultEventsTopic {
		t.Errorf("EventsTopic = %q, want %q", cfg.Kafka.EventsTopic, DefaultEventsTopic)
	}
	if cfg.Pricing.MaxTriggerAge != DefaultMaxTriggerAge {
		t.Errorf("MaxTriggerAge = %v, want %v", cfg.Pricing.MaxTriggerAge, DefaultMaxTriggerAge)
	}
	if cfg.Schedule.Rules != DefaultRulesCron {
		t.Errorf("Schedule.Rules = %q, want %q", cfg.Schedule.Rules, DefaultRulesCron)
	}
	if cfg.Pricing.GapThreshold != DefaultGapThreshold {
		t.Errorf("GapThreshold = %v, want %v", cfg.Pricing.GapThreshold, DefaultGapThreshold)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("RUN_ON_START", "true")

	cfg, err := Load(writeTempFile(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Telegram.BotToken != "env-token" {
		t.Errorf("BotToken = %q, want env-token", cfg.Telegram.BotToken)
	}
	if got := strings.Join(cfg.Kafka.Brokers, ","); got != "a:9092,b:9092" {
		t.Errorf("Brokers = %q", got)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if !cfg.RunOnStart {
		t.Error("RunOnStart should be set from env")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTempFile(t, "products: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "no products",
			mutate:  func(c *Config) { c.Products = nil },
			wantErr: "at least one product",
		},
		{
			name: "duplicate product",
			mutate: func(c *Config) {
				c.Products = append(c.Products, c.Products[0])
			},
			wantErr: "duplicated",
		},
		{
			name:    "no price",
			mutate:  func(c *Config) { c.Products[0].BasePrice = 0 },
			wantErr: "base_price",
		},
		{
			name:    "margin of 100",
			mutate:  func(c *Config) { c.Products[0].Constraints.MinMarginPct = 100 },
			wantErr: "min_margin_pct",
		},
		{
			name:    "gap threshold as percent",
			mutate:  func(c *Config) { c.Pricing.GapThreshold = 20 },
			wantErr: "gap_threshold",
		},
		{
			name:    "month out of range",
			mutate:  func(c *Config) { c.Seasonality.Monthly = map[int]float64{13: 1.1} },
			wantErr: "invalid month",
		},
		{
			name: "promotion ends first",
			mutate: func(c *Config) {
				p := &c.Seasonality.Promotions[0]
				p.End = p.Start.Add(-time.Hour)
			},
			wantErr: "ends before",
		},
		{
			name:    "log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTempFile(t, sampleYAML))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
