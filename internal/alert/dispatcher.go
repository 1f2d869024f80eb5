// Package alert coalesces raised alerts and delivers one alert per condition and window.
package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/model"
)

// Config holds dispatcher configuration.
type Config struct {
	Window          time.Duration // coalescing window (default: 5m)
	FlushInterval   time.Duration // how often held alerts are checked (default: 10s)
	DeliveryTimeout time.Duration // per-sink timeout (default: 10s)
}

// DefaultConfig returns the default dispatcher settings.
func DefaultConfig() Config {
	return Config{
		Window:          5 * time.Minute,
		FlushInterval:   10 * time.Second,
		DeliveryTimeout: 10 * time.Second,
	}
}

// Sink delivers an alert to people.
type Sink interface {
	Deliver(ctx context.Context, a model.Alert) error
}

// Store persists delivered alerts.
type Store interface {
	RecordAlert(ctx context.Context, a *model.Alert) error
}

type held struct {
	alert model.Alert
	first time.Time
}

// Dispatcher holds alerts for a window, merging occurrences with the same coalesce key,
// then delivers one alert carrying the occurrence count.
type Dispatcher struct {
	cfg     Config
	deduper Deduper
	store   Store
	sinks   []Sink
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*held

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. deduper and store may be nil.
func NewDispatcher(cfg Config, deduper Deduper, store Store, sinks ...Sink) *Dispatcher {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}
	if deduper == nil {
		deduper = NoopDeduper{}
	}
	return &Dispatcher{
		cfg:     cfg,
		deduper: deduper,
		store:   store,
		sinks:   sinks,
		now:     time.Now,
		pending: make(map[string]*held),
	}
}

// Raise queues an alert. It never blocks on delivery.
func (d *Dispatcher) Raise(a model.Alert) {
	key := a.CoalesceKey()
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if h, ok := d.pending[key]; ok {
		h.alert.Occurrences++
		if rank(a.Severity) < rank(h.alert.Severity) {
			h.alert.Severity = a.Severity
		}
		h.alert.CompetitorIDs = mergeIDs(h.alert.CompetitorIDs, a.CompetitorIDs)
		h.alert.Message = a.Message
		return
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.Occurrences = 1
	d.pending[key] = &held{alert: a, first: now}
	log.Debug().Str("type", string(a.Type)).Str("key", key).Msg("alert queued")
}

// Pending returns the number of alerts held for coalescing.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush delivers every held alert whose window has elapsed, or all of them when force is set.
func (d *Dispatcher) Flush(ctx context.Context, force bool) int {
	now := d.now()

	d.mu.Lock()
	var due []model.Alert
	for key, h := range d.pending {
		if force || now.Sub(h.first) >= d.cfg.Window {
			due = append(due, h.alert)
			delete(d.pending, key)
		}
	}
	d.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })

	delivered := 0
	for _, a := range due {
		if d.deliver(ctx, a) {
			delivered++
		}
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, a model.Alert) bool {
	first, err := d.deduper.FirstSeen(ctx, a.CoalesceKey(), d.cfg.Window)
	if err != nil {
		// on Redis errors the alert is still delivered
		log.Warn().Err(err).Str("type", string(a.Type)).Msg("alert de-duplication unavailable")
	} else if !first {
		log.Debug().Str("type", string(a.Type)).Str("key", a.CoalesceKey()).Msg("alert already delivered by another instance")
		return false
	}

	if d.store != nil {
		if err := d.store.RecordAlert(ctx, &a); err != nil {
			log.Error().Err(err).Str("alert", a.ID).Msg("failed to record alert")
		}
	}
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		if err := s.Deliver(sctx, a); err != nil {
			log.Error().Err(err).Str("alert", a.ID).Str("type", string(a.Type)).Msg("alert delivery failed")
		}
		cancel()
	}
	log.Info().Str("alert", a.ID).Str("type", string(a.Type)).Int("occurrences", a.Occurrences).Msg("alert delivered")
	return true
}

// Start begins the flush loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.run(ctx)

	log.Info().Dur("window", d.cfg.Window).Msg("alert dispatcher started")
	return nil
}

// Stop ends the flush loop and delivers everything still held.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	n := d.Flush(ctx, true)
	log.Info().Int("flushed", n).Msg("alert dispatcher stopped")
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Flush(ctx, false)
		}
	}
}

func rank(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 0
	case model.SeverityHigh:
		return 1
	case model.SeverityMedium:
		return 2
	}
	return 3
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			a = append(a, id)
			seen[id] = true
		}
	}
	return a
}
