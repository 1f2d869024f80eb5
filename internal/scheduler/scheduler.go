package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/model"
)

// Schedules holds the cron specs (with seconds) of every recurring job.
type Schedules struct {
	Elasticity string `yaml:"elasticity"`
	Rules      string `yaml:"rules"`
	Stockout   string `yaml:"stockout"`
	Stale      string `yaml:"stale"`
	Reconcile  string `yaml:"reconcile"`
	Recommend  string `yaml:"recommend"`
}

// ElasticityRefresher recomputes every product's elasticity.
type ElasticityRefresher interface {
	RefreshAll(ctx context.Context) error
}

// Reconciler compares matured forecasts with realized revenue.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]model.VarianceRecord, error)
}

// Jobs are the batch operations of the pipeline.
type Jobs interface {
	RunRuleCycles(ctx context.Context) error
	PredictStockouts(ctx context.Context) error
	SweepStale(ctx context.Context) int
	RecommendAll(ctx context.Context) ([]*model.PricingRecommendation, error)
}

// Scheduler manages all cron tasks. A job still running when its next tick fires is skipped.
type Scheduler struct {
	Cron       *cron.Cron
	Elasticity ElasticityRefresher
	Forecasts  Reconciler
	Jobs       Jobs
	Ctx        context.Context
	// Timeout bounds one run of a job; a run that times out is retried on the next tick.
	Timeout time.Duration
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, el ElasticityRefresher, fc Reconciler, jobs Jobs, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cronLogger{}))),
		Elasticity: el,
		Forecasts:  fc,
		Jobs:       jobs,
		Ctx:        ctx,
		Timeout:    timeout,
	}
}

// RegisterAll registers every job with a non-empty schedule.
func (s *Scheduler) RegisterAll(sch Schedules) error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"elasticity", sch.Elasticity, s.elasticityTask},
		{"rules", sch.Rules, s.rulesTask},
		{"stockout", sch.Stockout, s.stockoutTask},
		{"stale", sch.Stale, s.staleTask},
		{"reconcile", sch.Reconcile, s.reconcileTask},
		{"recommend", sch.Recommend, s.recommendTask},
	}
	for _, j := range jobs {
		if j.spec == "" {
			log.Info().Str("job", j.name).Msg("job disabled")
			continue
		}
		if _, err := s.Cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunStartupNow refreshes elasticities and predictions immediately (RUN_ON_START).
func (s *Scheduler) RunStartupNow() {
	s.elasticityTask()
	s.stockoutTask()
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(s.Ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	log.Info().Str("job", name).Msg("running task")
	err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("task failed")
		return err
	}
	log.Info().Str("job", name).Dur("took", time.Since(start)).Msg("task done")
	return nil
}

func (s *Scheduler) elasticityTask() {
	s.run("elasticity", s.Elasticity.RefreshAll)
}

func (s *Scheduler) rulesTask() {
	s.run("rules", s.Jobs.RunRuleCycles)
}

func (s *Scheduler) stockoutTask() {
	s.run("stockout", s.Jobs.PredictStockouts)
}

func (s *Scheduler) staleTask() {
	s.run("stale", func(ctx context.Context) error {
		s.Jobs.SweepStale(ctx)
		return nil
	})
}

func (s *Scheduler) reconcileTask() {
	s.run("reconcile", func(ctx context.Context) error {
		recs, err := s.Forecasts.Reconcile(ctx)
		if len(recs) > 0 {
			log.Warn().Int("misses", len(recs)).Msg("forecasts outside tolerance")
		}
		return err
	})
}

func (s *Scheduler) recommendTask() {
	s.run("recommend", func(ctx context.Context) error {
		recs, err := s.Jobs.RecommendAll(ctx)
		n := 0
		for _, r := range recs {
			if r.Compliant() {
				n++
			}
		}
		log.Info().Int("products", len(recs)).Int("compliant", n).Msg("recommendations generated")
		return err
	})
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
