package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"PriceSentinel/internal/elasticity"
	"PriceSentinel/internal/forecast"
	"PriceSentinel/internal/market"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/pricebook"
	"PriceSentinel/internal/recorder"
	"PriceSentinel/internal/rules"
	"PriceSentinel/internal/stockout"
	"PriceSentinel/internal/strategy"
)

type alertLog struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (a *alertLog) Raise(al model.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
}

func (a *alertLog) ofType(t model.AlertType) []model.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.Alert
	for _, al := range a.alerts {
		if al.Type == t {
			out = append(out, al)
		}
	}
	return out
}

type capturePublisher struct {
	mu       sync.Mutex
	changes  []model.PriceChange
	reorders []model.ReorderRecommendation
}

func (c *capturePublisher) PublishPriceChange(_ context.Context, ch *model.PriceChange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, *ch)
	return nil
}

func (c *capturePublisher) PublishReorder(_ context.Context, r *model.ReorderRecommendation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reorders = append(c.reorders, *r)
	return nil
}

type memHistory struct {
	audits []model.AuditLogEntry
	recs   []model.PricingRecommendation
}

func (m *memHistory) Recommendations(_ context.Context, productID string, limit int) ([]model.PricingRecommendation, error) {
	return m.recs, nil
}

func (m *memHistory) RecordAudit(_ context.Context, e *model.AuditLogEntry) error {
	m.audits = append(m.audits, *e)
	return nil
}

type fixture struct {
	store      *market.Store
	book       *pricebook.Book
	registry   *rules.Registry
	forecaster *forecast.Forecaster
	alerts     *alertLog
	publisher  *capturePublisher
	history    *memHistory
	pipeline   *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	products := []model.Product{{
		ID: "sku-1", CategoryID: "snacks", Cost: 60, BasePrice: 100, TargetInventory: 100, LeadTimeDays: 2,
		Constraints: model.PricingConstraints{MinMarginPct: 15, MaxDiscountPct: 30, MaxPriceChangePct: 20},
	}}
	store := market.NewStore(products, 0)
	book, err := pricebook.New("", products)
	if err != nil {
		t.Fatalf("pricebook: %v", err)
	}
	alerts := &alertLog{}
	ledger := recorder.NewNoopRecorder()

	predictor := stockout.New(store, store, nil, nil, alerts, stockout.Options{})
	snapshots := market.NewSnapshotter(store, book, predictor, 0)
	registry := rules.NewRegistry(store, nil)
	ruleEngine := rules.NewEngine(registry, snapshots, book, ledger, alerts, nil, 0)
	el := elasticity.NewStore(store, store, nil, elasticity.Options{})
	forecaster := forecast.New(el, store, store, book, nil, nil, nil, forecast.Options{})
	recs := strategy.NewEngine(snapshots, forecaster, nil, alerts, strategy.Options{})

	f := &fixture{
		store:      store,
		book:       book,
		registry:   registry,
		forecaster: forecaster,
		alerts:     alerts,
		publisher:  &capturePublisher{},
		history:    &memHistory{},
	}
	f.pipeline = New(store, snapshots, ruleEngine, recs, forecaster, predictor, f.history, f.publisher, alerts, Options{})
	return f
}

func TestHandlePricePoint_RuleExecutesAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Create(ctx, model.PricingRule{
		ID:          "follow-lowest",
		ProductIDs:  []string{"sku-1"},
		Conditions:  []model.Condition{{Metric: model.MetricCompetitorLowest, Operator: model.OpLT, Value: 95}},
		Action:      model.Action{Kind: model.ActionMatchCompetitor, Match: model.MatchLowest},
		Constraints: model.PricingConstraints{MinMarginPct: 15, MaxPriceChangePct: 20},
		Enabled:     true,
		Priority:    1,
	}, "user-1")
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	now := time.Now()
	if err := f.pipeline.HandlePricePoint(ctx, model.PricePoint{ProductID: "sku-1", CompetitorID: "acme", ChannelID: "web", Price: 90, Available: true, ObservedAt: now}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// older than the applied observation from the same source: dropped, no second cycle
	if err := f.pipeline.HandlePricePoint(ctx, model.PricePoint{ProductID: "sku-1", CompetitorID: "acme", ChannelID: "web", Price: 85, Available: true, ObservedAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	f.pipeline.Wait()

	if e, _ := f.book.Get("sku-1"); e.PriceFloat() != 90 {
		t.Errorf("price = %s, want 90", e.Price)
	}
	if len(f.publisher.changes) != 1 || f.publisher.changes[0].NewPrice != 90 {
		t.Errorf("expected one published change to 90, got %+v", f.publisher.changes)
	}
	if n := f.forecaster.Tracked(); n != 1 {
		t.Errorf("expected the executed change to be tracked for reconciliation, got %d", n)
	}
}

func TestHandlePricePoint_GapAlert(t *testing.T) {
	f := newFixture(t)
	err := f.pipeline.HandlePricePoint(context.Background(), model.PricePoint{ProductID: "sku-1", CompetitorID: "acme", Price: 70, Available: true, ObservedAt: time.Now()})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	gaps := f.alerts.ofType(model.AlertPriceGap)
	if len(gaps) != 1 || gaps[0].CompetitorIDs[0] != "acme" {
		t.Errorf("expected a price_gap alert naming acme, got %+v", gaps)
	}
}

func TestHandleInventory_ReorderPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 28; i++ {
		rec := model.SalesRecord{ProductID: "sku-1", Quantity: 12, Price: 100, Revenue: 1200, SoldAt: now.Add(-time.Duration(i)*24*time.Hour - 12*time.Hour)}
		if err := f.pipeline.HandleSales(ctx, rec); err != nil {
			t.Fatalf("sales: %v", err)
		}
	}

	low := model.InventoryObservation{ProductID: "sku-1", LocationID: "store-1", Quantity: 10, Confidence: 20, ObservedAt: now.Add(-time.Minute)}
	if err := f.pipeline.HandleInventory(ctx, low); err != nil {
		t.Fatalf("inventory: %v", err)
	}
	f.pipeline.Wait()
	if len(f.publisher.reorders) != 0 {
		t.Fatal("a low-confidence observation must not drive a reorder")
	}

	obs := model.InventoryObservation{ProductID: "sku-1", LocationID: "store-1", Quantity: 10, Confidence: 90, ObservedAt: now}
	if err := f.pipeline.HandleInventory(ctx, obs); err != nil {
		t.Fatalf("inventory: %v", err)
	}
	f.pipeline.Wait()

	if len(f.publisher.reorders) != 1 {
		t.Fatalf("expected one reorder, got %d", len(f.publisher.reorders))
	}
	if ro := f.publisher.reorders[0]; ro.LocationID != "store-1" || ro.Quantity < 24 {
		t.Errorf("unexpected reorder %+v", ro)
	}

	recs, err := f.pipeline.RecommendAll(ctx)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(recs) != 1 || recs[0] == nil || recs[0].ProductID != "sku-1" {
		t.Errorf("unexpected recommendations %+v", recs)
	}
}

func TestSweepStale(t *testing.T) {
	f := newFixture(t)
	at := time.Now()
	f.pipeline.HandleInventory(context.Background(), model.InventoryObservation{ProductID: "sku-1", LocationID: "dc", Quantity: 500, Confidence: 95, ObservedAt: at})

	f.pipeline.now = func() time.Time { return at.Add(5 * time.Hour) }
	if n := f.pipeline.SweepStale(context.Background()); n != 0 {
		t.Errorf("nothing is stale after 5h, got %d", n)
	}
	f.pipeline.now = func() time.Time { return at.Add(7 * time.Hour) }
	if n := f.pipeline.SweepStale(context.Background()); n != 1 {
		t.Errorf("expected one stale slot, got %d", n)
	}
	stale := f.alerts.ofType(model.AlertStaleObservation)
	if len(stale) != 1 || stale[0].LocationID != "dc" {
		t.Errorf("unexpected stale alerts %+v", stale)
	}
}

func TestRecommendationHistory_Audited(t *testing.T) {
	f := newFixture(t)
	f.history.recs = []model.PricingRecommendation{{ID: "rec-1", ProductID: "sku-1"}}

	got, err := f.pipeline.RecommendationHistory(context.Background(), "sku-1", "analyst-7", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected one recommendation, got %d", len(got))
	}
	if len(f.history.audits) != 1 || f.history.audits[0].Action != model.AuditSensitiveRead || f.history.audits[0].Actor != "analyst-7" {
		t.Errorf("expected a sensitive_read audit entry, got %+v", f.history.audits)
	}
}

func TestManualPriceChange_Published(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pipeline.ManualPriceChange(context.Background(), "sku-1", 95, "user-3"); err != nil {
		t.Fatalf("manual change: %v", err)
	}
	f.pipeline.Wait()
	if len(f.publisher.changes) != 1 || f.publisher.changes[0].Actor != "user-3" {
		t.Errorf("unexpected published changes %+v", f.publisher.changes)
	}
	if n := f.forecaster.Tracked(); n != 1 {
		t.Errorf("expected the manual change to be tracked for reconciliation, got %d", n)
	}
}
