package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/alert"
	"PriceSentinel/internal/config"
	"PriceSentinel/internal/elasticity"
	"PriceSentinel/internal/forecast"
	"PriceSentinel/internal/ingest"
	"PriceSentinel/internal/market"
	"PriceSentinel/internal/notifier"
	"PriceSentinel/internal/pipeline"
	"PriceSentinel/internal/pricebook"
	"PriceSentinel/internal/recorder"
	"PriceSentinel/internal/rules"
	"PriceSentinel/internal/scheduler"
	"PriceSentinel/internal/season"
	"PriceSentinel/internal/stockout"
	"PriceSentinel/internal/strategy"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	log.Info().Int("products", len(cfg.Products)).Int("rules", len(cfg.Rules)).Msg("PriceSentinel starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	// Alerts
	var deduper alert.Deduper = alert.NoopDeduper{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, alerts will not be deduplicated across instances")
		}
		deduper = alert.NewRedisDeduper(client)
	}
	var sinks []alert.Sink
	if cfg.Telegram.BotToken != "" {
		tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		tn.Recipients = cfg.Telegram.Recipients
		tn.MaxRetries = cfg.Telegram.MaxRetries
		sinks = append(sinks, tn)
	} else {
		log.Warn().Msg("telegram not configured, alerts are only recorded")
	}
	dispatcher := alert.NewDispatcher(alert.Config{
		Window:        cfg.Alerts.Window,
		FlushInterval: cfg.Alerts.FlushInterval,
	}, deduper, rec, sinks...)

	// Market state
	store := market.NewStore(cfg.Products, cfg.Pricing.MinInventoryConfidence)
	book, err := pricebook.New(cfg.PriceBook.StateFile, cfg.Products)
	if err != nil {
		log.Fatal().Err(err).Msg("init price book")
	}
	calendar := season.NewCalendar(cfg.Seasonality.Monthly, cfg.Seasonality.Promotions)

	predictor := stockout.New(store, store, calendar, rec, dispatcher, stockout.Options{
		ThresholdHours:  cfg.Stockout.ThresholdHours,
		HistoryDays:     cfg.Stockout.HistoryDays,
		AlertConfidence: cfg.Stockout.AlertConfidence,
		ServiceZ:        cfg.Stockout.ServiceZ,
	})
	states := market.NewSnapshotter(store, book, predictor, cfg.Pricing.GapThreshold)

	// Analytics
	el := elasticity.NewStore(store, store, rec, elasticity.Options{
		LookbackDays:  cfg.Elasticity.LookbackDays,
		GlobalDefault: cfg.Elasticity.GlobalDefault,
		CategorySeeds: cfg.Elasticity.CategorySeeds,
	})
	fc := forecast.New(el, store, store, book, calendar, rec, dispatcher, forecast.Options{
		BaselineDays:      cfg.Forecast.BaselineDays,
		VarianceThreshold: cfg.Forecast.VarianceThreshold,
	})
	recommender := strategy.NewEngine(states, fc, rec, dispatcher, strategy.Options{
		HorizonDays:   cfg.Pricing.HorizonDays,
		Parallelism:   cfg.Pricing.Parallelism,
		LowConfidence: cfg.Pricing.LowConfidence,
	})

	// Rules
	registry := rules.NewRegistry(store, rec)
	for _, r := range cfg.Rules {
		if _, err := registry.Create(ctx, r, "config"); err != nil {
			log.Error().Err(err).Str("rule", r.ID).Msg("skipping invalid rule")
		}
	}
	engine := rules.NewEngine(registry, states, book, rec, dispatcher, recommender, cfg.Pricing.MaxTriggerAge)

	// Outbound commands
	var publisher ingest.Publisher = ingest.NoopPublisher{}
	kcfg := ingest.KafkaConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.GroupID,
		EventsTopic:   cfg.Kafka.EventsTopic,
		OutboundTopic: cfg.Kafka.OutboundTopic,
	}
	if len(kcfg.Brokers) > 0 {
		kp := ingest.NewKafkaPublisher(ingest.NewKafkaWriter(kcfg))
		defer kp.Close()
		publisher = kp
	}

	pipe := pipeline.New(store, states, engine, recommender, fc, predictor, rec, publisher, dispatcher, pipeline.Options{
		StaleAfter:      cfg.Pricing.StaleAfter,
		ForecastHorizon: cfg.Pricing.HorizonDays,
	})

	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start alert dispatcher")
	}

	// Inbound events
	pool := ingest.NewShardedPool(cfg.Kafka.Workers, cfg.Kafka.QueueDepth)
	pool.Start()
	consumerDone := make(chan struct{})
	if len(kcfg.Brokers) > 0 {
		reader := ingest.NewKafkaReader(kcfg)
		consumer := ingest.NewConsumer(reader, pool, pipe)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("consumer stopped")
			}
			if err := reader.Close(); err != nil {
				log.Error().Err(err).Msg("close kafka reader")
			}
		}()
		log.Info().Strs("brokers", kcfg.Brokers).Str("topic", kcfg.EventsTopic).Msg("consuming market events")
	} else {
		close(consumerDone)
		log.Warn().Msg("kafka not configured, no market events will be consumed")
	}

	// Scheduler
	sched := scheduler.NewScheduler(ctx, el, fc, pipe, cfg.Pricing.JobTimeout)
	if err := sched.RegisterAll(cfg.Schedule); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()

	if cfg.RunOnStart {
		log.Info().Msg("run_on_start enabled, refreshing elasticities and stockout predictions now")
		go sched.RunStartupNow()
	}

	log.Info().Msg("PriceSentinel is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping...")

	<-consumerDone
	pool.Stop()
	sched.Stop()
	pipe.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("stop alert dispatcher")
	}
	log.Info().Msg("PriceSentinel stopped")
}

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Caller().Logger()
}
