package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"PriceSentinel/internal/model"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []model.Alert
	err    error
}

func (c *captureSink) Deliver(_ context.Context, a model.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

type captureStore struct{ alerts []model.Alert }

func (c *captureStore) RecordAlert(_ context.Context, a *model.Alert) error {
	c.alerts = append(c.alerts, *a)
	return nil
}

func gap(product string, sev model.Severity, competitor string) model.Alert {
	return model.Alert{
		Type:          model.AlertPriceGap,
		Severity:      sev,
		ProductIDs:    []string{product},
		CompetitorIDs: []string{competitor},
		Message:       "gap",
	}
}

func TestDispatcher_Coalesces(t *testing.T) {
	clock := time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)
	sink := &captureSink{}
	store := &captureStore{}
	d := NewDispatcher(Config{Window: 5 * time.Minute}, nil, store, sink)
	d.now = func() time.Time { return clock }

	d.Raise(gap("sku-1", model.SeverityLow, "acme"))
	d.Raise(gap("sku-1", model.SeverityHigh, "bolt"))
	d.Raise(gap("sku-1", model.SeverityMedium, "acme"))
	d.Raise(gap("sku-2", model.SeverityLow, "acme"))

	if n := d.Flush(context.Background(), false); n != 0 {
		t.Fatalf("nothing is due inside the window, delivered %d", n)
	}
	if d.Pending() != 2 {
		t.Fatalf("expected 2 held alerts, got %d", d.Pending())
	}

	clock = clock.Add(5 * time.Minute)
	if n := d.Flush(context.Background(), false); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	var merged model.Alert
	for _, a := range sink.alerts {
		if a.ProductIDs[0] == "sku-1" {
			merged = a
		}
	}
	if merged.Occurrences != 3 {
		t.Errorf("occurrences = %d, want 3", merged.Occurrences)
	}
	if merged.Severity != model.SeverityHigh {
		t.Errorf("severity = %s, want the most severe", merged.Severity)
	}
	if len(merged.CompetitorIDs) != 2 {
		t.Errorf("competitors = %v, want both", merged.CompetitorIDs)
	}
	if merged.ID == "" || merged.CreatedAt.IsZero() {
		t.Error("delivered alert needs an id and a timestamp")
	}
	if len(store.alerts) != 2 {
		t.Errorf("expected both alerts recorded, got %d", len(store.alerts))
	}
	if d.Pending() != 0 {
		t.Error("delivered alerts must leave the queue")
	}
}

func TestDispatcher_KeyIncludesLocation(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(Config{}, nil, nil, sink)

	for _, loc := range []string{"store-1", "store-2", "store-1"} {
		d.Raise(model.Alert{Type: model.AlertStockoutRisk, ProductIDs: []string{"sku-1"}, LocationID: loc})
	}
	if n := d.Flush(context.Background(), true); n != 2 {
		t.Errorf("expected one alert per location, got %d", n)
	}
}

func TestDispatcher_KeyIncludesRecipient(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(Config{}, nil, nil, sink)

	conflict := func(owner, msg string) model.Alert {
		return model.Alert{Type: model.AlertRuleConflict, Severity: model.SeverityHigh, ProductIDs: []string{"sku-1"}, Recipient: owner, Message: msg}
	}
	d.Raise(conflict("owner-a", "rule a rejected"))
	d.Raise(conflict("owner-b", "rule b rejected"))
	d.Raise(conflict("owner-a", "rule a rejected again"))

	if n := d.Flush(context.Background(), true); n != 2 {
		t.Fatalf("expected one alert per owner, got %d", n)
	}
	got := make(map[string]model.Alert)
	for _, a := range sink.alerts {
		got[a.Recipient] = a
	}
	if a := got["owner-a"]; a.Occurrences != 2 || a.Message != "rule a rejected again" {
		t.Errorf("owner-a alert = %+v", a)
	}
	if b := got["owner-b"]; b.Occurrences != 1 || b.Message != "rule b rejected" {
		t.Errorf("owner-b alert = %+v", b)
	}
}

func TestDispatcher_SinkFailureIsLogged(t *testing.T) {
	failing := &captureSink{err: errors.New("telegram down")}
	ok := &captureSink{}
	d := NewDispatcher(Config{}, nil, nil, failing, ok)

	d.Raise(gap("sku-1", model.SeverityLow, "acme"))
	d.Flush(context.Background(), true)
	if len(ok.alerts) != 1 {
		t.Error("a failing sink must not block the others")
	}
}

func TestRedisDeduper_AcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sinkA, sinkB := &captureSink{}, &captureSink{}
	a := NewDispatcher(Config{Window: time.Minute}, NewRedisDeduper(client), nil, sinkA)
	b := NewDispatcher(Config{Window: time.Minute}, NewRedisDeduper(client), nil, sinkB)

	a.Raise(gap("sku-1", model.SeverityLow, "acme"))
	b.Raise(gap("sku-1", model.SeverityLow, "acme"))

	ctx := context.Background()
	if got := a.Flush(ctx, true) + b.Flush(ctx, true); got != 1 {
		t.Fatalf("expected exactly one delivery across instances, got %d", got)
	}

	mr.FastForward(2 * time.Minute)
	b.Raise(gap("sku-1", model.SeverityLow, "acme"))
	if got := b.Flush(ctx, true); got != 1 {
		t.Errorf("expected delivery after the window expired, got %d", got)
	}
}

func TestRedisDeduper_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	sink := &captureSink{}
	d := NewDispatcher(Config{}, NewRedisDeduper(client), nil, sink)
	d.Raise(gap("sku-1", model.SeverityLow, "acme"))
	if got := d.Flush(context.Background(), true); got != 1 {
		t.Errorf("alerts must still be delivered without Redis, got %d", got)
	}
}

func TestDispatcher_StopFlushes(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(Config{Window: time.Hour, FlushInterval: time.Hour}, nil, nil, sink)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	d.Raise(gap("sku-1", model.SeverityLow, "acme"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(sink.alerts) != 1 {
		t.Errorf("held alerts must be delivered on stop, got %d", len(sink.alerts))
	}
}
