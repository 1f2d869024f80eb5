package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"PriceSentinel/internal/elasticity"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/scheduler"
	"PriceSentinel/internal/season"
)

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`
	Telegram struct {
		BotToken   string            `yaml:"bot_token"`
		ChatID     string            `yaml:"chat_id"`
		Recipients map[string]string `yaml:"recipients"`
		MaxRetries int               `yaml:"max_retries"`
	} `yaml:"telegram"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		GroupID       string   `yaml:"group_id"`
		EventsTopic   string   `yaml:"events_topic"`
		OutboundTopic string   `yaml:"outbound_topic"`
		Workers       int      `yaml:"workers"`
		QueueDepth    int      `yaml:"queue_depth"`
	} `yaml:"kafka"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	PriceBook struct {
		StateFile string `yaml:"state_file"`
	} `yaml:"price_book"`
	Pricing struct {
		MinInventoryConfidence float64       `yaml:"min_inventory_confidence"`
		StaleAfter             time.Duration `yaml:"stale_after"`
		GapThreshold           float64       `yaml:"gap_threshold"` // fraction, 0.2 = 20%
		MaxTriggerAge          time.Duration `yaml:"max_trigger_age"`
		HorizonDays            int           `yaml:"horizon_days"`
		LowConfidence          float64       `yaml:"low_confidence"`
		Parallelism            int           `yaml:"parallelism"`
		JobTimeout             time.Duration `yaml:"job_timeout"`
	} `yaml:"pricing"`
	Stockout struct {
		ThresholdHours  float64 `yaml:"threshold_hours"`
		AlertConfidence float64 `yaml:"alert_confidence"`
		HistoryDays     int     `yaml:"history_days"`
		ServiceZ        float64 `yaml:"service_z"`
	} `yaml:"stockout"`
	Forecast struct {
		BaselineDays      int     `yaml:"baseline_days"`
		VarianceThreshold float64 `yaml:"variance_threshold"`
	} `yaml:"forecast"`
	Elasticity struct {
		LookbackDays  int                        `yaml:"lookback_days"`
		GlobalDefault elasticity.Seed            `yaml:"global_default"`
		CategorySeeds map[string]elasticity.Seed `yaml:"category_seeds"`
	} `yaml:"elasticity"`
	Alerts struct {
		Window        time.Duration `yaml:"window"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"alerts"`
	Seasonality struct {
		Monthly    map[int]float64    `yaml:"monthly"`
		Promotions []season.Promotion `yaml:"promotions"`
	} `yaml:"seasonality"`
	Schedule   scheduler.Schedules `yaml:"schedule"`
	Products   []model.Product     `yaml:"products"`
	Rules      []model.PricingRule `yaml:"rules"`
	Proxy      string              `yaml:"proxy"`
	RunOnStart bool                `yaml:"run_on_start"`
}

// Load reads config from a YAML file, then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("PRICEBOOK_STATE_FILE"); v != "" {
		c.PriceBook.StateFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CRON_RULES"); v != "" {
		c.Schedule.Rules = v
	}
	if v := os.Getenv("RUN_ON_START"); v == "true" || v == "1" {
		c.RunOnStart = true
	}
}
