package config

import (
	"time"

	"PriceSentinel/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "console"
	DefaultTelegramRetries        = 3
	DefaultGroupID                = "price-sentinel"
	DefaultEventsTopic            = "market-events"
	DefaultOutboundTopic          = "pricing-commands"
	DefaultWorkers                = 8
	DefaultQueueDepth             = 64
	DefaultSQLitePath             = "data/price_sentinel.db"
	DefaultPriceBookFile          = "data/price_book.json"
	DefaultMinInventoryConfidence = 40
	DefaultStaleAfter             = 6 * time.Hour
	DefaultGapThreshold           = 0.20
	DefaultMaxTriggerAge          = 5 * time.Minute
	DefaultJobTimeout             = 5 * time.Minute
	DefaultAlertWindow            = 5 * time.Minute
	DefaultAlertFlush             = 10 * time.Second

	DefaultElasticityCron = "0 0 3 * * 1"
	DefaultRulesCron      = "0 */5 * * * *"
	DefaultStockoutCron   = "0 0 * * * *"
	DefaultStaleCron      = "0 */15 * * * *"
	DefaultReconcileCron  = "0 30 2 * * *"
	DefaultRecommendCron  = "0 0 6 * * *"
)

// Zero values of the remaining numeric settings fall through to each component's own defaults.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Telegram.MaxRetries == 0 {
		c.Telegram.MaxRetries = DefaultTelegramRetries
	}

	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = DefaultGroupID
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = DefaultEventsTopic
	}
	if c.Kafka.OutboundTopic == "" {
		c.Kafka.OutboundTopic = DefaultOutboundTopic
	}
	if c.Kafka.Workers == 0 {
		c.Kafka.Workers = DefaultWorkers
	}
	if c.Kafka.QueueDepth == 0 {
		c.Kafka.QueueDepth = DefaultQueueDepth
	}

	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = DefaultSQLitePath
	}
	if c.PriceBook.StateFile == "" {
		c.PriceBook.StateFile = DefaultPriceBookFile
	}

	if c.Schedule.Elasticity == "" {
		c.Schedule.Elasticity = DefaultElasticityCron
	}
	if c.Schedule.Rules == "" {
		c.Schedule.Rules = DefaultRulesCron
	}
	if c.Schedule.Stockout == "" {
		c.Schedule.Stockout = DefaultStockoutCron
	}
	if c.Schedule.Stale == "" {
		c.Schedule.Stale = DefaultStaleCron
	}
	if c.Schedule.Reconcile == "" {
		c.Schedule.Reconcile = DefaultReconcileCron
	}
	if c.Schedule.Recommend == "" {
		c.Schedule.Recommend = DefaultRecommendCron
	}

	if c.Pricing.MinInventoryConfidence == 0 {
		c.Pricing.MinInventoryConfidence = DefaultMinInventoryConfidence
	}
	if c.Pricing.StaleAfter == 0 {
		c.Pricing.StaleAfter = DefaultStaleAfter
	}
	if c.Pricing.GapThreshold == 0 {
		c.Pricing.GapThreshold = DefaultGapThreshold
	}
	if c.Pricing.MaxTriggerAge == 0 {
		c.Pricing.MaxTriggerAge = DefaultMaxTriggerAge
	}
	if c.Pricing.JobTimeout == 0 {
		c.Pricing.JobTimeout = DefaultJobTimeout
	}

	if c.Alerts.Window == 0 {
		c.Alerts.Window = DefaultAlertWindow
	}
	if c.Alerts.FlushInterval == 0 {
		c.Alerts.FlushInterval = DefaultAlertFlush
	}

	for i := range c.Rules {
		if c.Rules[i].Combinator == "" {
			c.Rules[i].Combinator = model.CombinatorAnd
		}
	}
}
