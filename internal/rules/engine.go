// Package rules evaluates user-defined pricing rules against live product state and applies
// at most one constraint-checked price change per product per cycle.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/model"
	"PriceSentinel/internal/pricebook"
)

// DefaultMaxTriggerAge is how old a triggering event may be when its price change executes.
const DefaultMaxTriggerAge = 5 * time.Minute

// Phase is a step of one rule evaluation.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseConditionsEvaluated Phase = "conditions_evaluated"
	PhaseTriggered           Phase = "triggered"
	PhaseNotTriggered        Phase = "not_triggered"
	PhaseConstraintChecked   Phase = "constraint_checked"
	PhaseExecuted            Phase = "executed"
	PhaseRejected            Phase = "rejected"
	PhaseSkipped             Phase = "skipped"
)

var transitions = map[Phase][]Phase{
	PhaseIdle:                {PhaseConditionsEvaluated, PhaseSkipped},
	PhaseConditionsEvaluated: {PhaseTriggered, PhaseNotTriggered},
	PhaseTriggered:           {PhaseConstraintChecked, PhaseRejected},
	PhaseConstraintChecked:   {PhaseExecuted, PhaseRejected},
}

// Evaluation is the record of one rule in one cycle.
type Evaluation struct {
	RuleID     string
	Path       []Phase
	Candidate  float64
	Violations model.Violations
	Reason     string
	Unchanged  bool // executed at the current price, no mutation written
}

// Phase returns the final phase reached.
func (e *Evaluation) Phase() Phase {
	return e.Path[len(e.Path)-1]
}

func (e *Evaluation) advance(next Phase) {
	cur := e.Phase()
	if !allowed(cur, next) {
		log.Error().Str("rule", e.RuleID).Str("from", string(cur)).Str("to", string(next)).Msg("illegal rule phase transition")
		return
	}
	e.Path = append(e.Path, next)
}

func allowed(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Trigger identifies what started a cycle.
type Trigger struct {
	Source string
	At     time.Time
}

// CycleReport summarizes one evaluation cycle for a product.
type CycleReport struct {
	ProductID   string
	Trigger     Trigger
	Evaluations []Evaluation
	Change      *model.PriceChange
}

// Executed returns the evaluation that executed, if any.
func (r *CycleReport) Executed() *Evaluation {
	for i := range r.Evaluations {
		if r.Evaluations[i].Phase() == PhaseExecuted {
			return &r.Evaluations[i]
		}
	}
	return nil
}

// StateReader returns the current state of a product.
type StateReader interface {
	State(ctx context.Context, productID string) (model.ProductState, error)
}

// PriceBook is the owned current price store.
type PriceBook interface {
	Get(productID string) (pricebook.Entry, error)
	CompareAndSet(productID string, expected int64, price float64, actor string) (pricebook.Entry, error)
}

// Ledger writes a price change and its audit entry in one transaction. apply runs inside the
// transaction; if it fails nothing is written.
type Ledger interface {
	RecordPriceChange(ctx context.Context, change *model.PriceChange, entry *model.AuditLogEntry, apply func() error) error
	RecordAudit(ctx context.Context, entry *model.AuditLogEntry) error
}

// Alerter raises alerts.
type Alerter interface {
	Raise(a model.Alert)
}

// Engine runs rule cycles. Price mutation for one product is serialized; different products run in parallel.
type Engine struct {
	registry      *Registry
	states        StateReader
	book          PriceBook
	ledger        Ledger
	alerts        Alerter
	recommender   Recommender
	maxTriggerAge time.Duration
	now           func() time.Time
	locks         keyedMutex
}

// NewEngine creates an Engine. alerts and recommender may be nil.
func NewEngine(registry *Registry, states StateReader, book PriceBook, ledger Ledger, alerts Alerter, recommender Recommender, maxTriggerAge time.Duration) *Engine {
	if maxTriggerAge <= 0 {
		maxTriggerAge = DefaultMaxTriggerAge
	}
	return &Engine{
		registry:      registry,
		states:        states,
		book:          book,
		ledger:        ledger,
		alerts:        alerts,
		recommender:   recommender,
		maxTriggerAge: maxTriggerAge,
		now:           time.Now,
	}
}

// RunCycle evaluates every enabled rule targeting productID against one snapshot, highest priority first.
// The first rule that executes ends the cycle for that product; the rest are skipped.
// When another writer moves the price between snapshot and execution the cycle starts over on a fresh
// snapshot; only the last attempt records the conflict.
func (e *Engine) RunCycle(ctx context.Context, productID string, trigger Trigger) (*CycleReport, error) {
	report := &CycleReport{ProductID: productID, Trigger: trigger}
	rules := e.registry.ForProduct(productID)
	if len(rules) == 0 {
		return report, nil
	}

	for attempt := 1; ; attempt++ {
		state, err := e.states.State(ctx, productID)
		if err != nil {
			return report, fmt.Errorf("snapshot of %s: %w", productID, err)
		}
		report.Evaluations, report.Change = nil, nil

		err = e.cycle(ctx, rules, state, trigger, report, attempt < maxSnapshotAttempts)
		if errors.Is(err, errStaleState) {
			log.Debug().Str("product", productID).Int("attempt", attempt).Msg("price moved during rule cycle, re-reading snapshot")
			continue
		}
		return report, err
	}
}

// cycle runs rules against state. It returns errStaleState when retryStale is set and the snapshot went stale.
func (e *Engine) cycle(ctx context.Context, rules []model.PricingRule, state model.ProductState, trigger Trigger, report *CycleReport, retryStale bool) error {
	executed := false
	for _, rule := range rules {
		ev := Evaluation{RuleID: rule.ID, Path: []Phase{PhaseIdle}}
		if executed {
			ev.advance(PhaseSkipped)
			ev.Reason = "a higher-priority rule already changed the price this cycle"
			report.Evaluations = append(report.Evaluations, ev)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		change, err := e.evaluate(ctx, rule, state, trigger, &ev, retryStale)
		if err != nil {
			return err
		}
		report.Evaluations = append(report.Evaluations, ev)
		if ev.Phase() == PhaseExecuted {
			executed = true
			report.Change = change
		}
	}
	return nil
}

// evaluate drives one rule through the state machine.
func (e *Engine) evaluate(ctx context.Context, rule model.PricingRule, state model.ProductState, trigger Trigger, ev *Evaluation, retryStale bool) (*model.PriceChange, error) {
	held, why := conditionsHold(rule, state)
	ev.advance(PhaseConditionsEvaluated)
	if !held {
		ev.advance(PhaseNotTriggered)
		ev.Reason = why
		return nil, nil
	}
	ev.advance(PhaseTriggered)

	price, err := candidatePrice(ctx, rule, state, e.recommender)
	if err != nil {
		e.reject(ctx, rule, state, ev, err.Error())
		return nil, nil
	}
	ev.Candidate = price

	if v := state.Check(rule.Constraints, price); len(v) > 0 {
		ev.Violations = v
		e.reject(ctx, rule, state, ev, "constraint violation: "+v.String())
		return nil, nil
	}
	ev.advance(PhaseConstraintChecked)

	// past the constraint check the mutation and its audit complete even if the caller goes away
	change, err := e.execute(context.WithoutCancel(ctx), rule, state, trigger, price, ev)
	if err != nil {
		if retryStale && errors.Is(err, errStaleState) {
			return nil, err
		}
		e.reject(context.WithoutCancel(ctx), rule, state, ev, err.Error())
		return nil, nil
	}
	ev.advance(PhaseExecuted)
	return change, nil
}

// maxSnapshotAttempts bounds how often a cycle re-reads a snapshot that another writer made stale.
const maxSnapshotAttempts = 3

var (
	errStaleTrigger = errors.New("triggering event too old")
	errStaleState   = errors.New("price changed since the snapshot")
)

func (e *Engine) execute(ctx context.Context, rule model.PricingRule, state model.ProductState, trigger Trigger, price float64, ev *Evaluation) (*model.PriceChange, error) {
	unlock := e.locks.Lock(state.Product.ID)
	defer unlock()

	now := e.now()
	if age := now.Sub(trigger.At); age > e.maxTriggerAge {
		return nil, fmt.Errorf("%w: %s", errStaleTrigger, age.Round(time.Second))
	}
	cur, err := e.book.Get(state.Product.ID)
	if err != nil {
		return nil, err
	}
	if cur.Version != state.PriceVersion {
		return nil, fmt.Errorf("%w: version %d, snapshot %d", errStaleState, cur.Version, state.PriceVersion)
	}
	if math.Round(price*100) == math.Round(state.CurrentPrice*100) {
		ev.Unchanged = true
		ev.Reason = "already at target price"
		return nil, nil
	}

	actor := "rule:" + rule.ID
	change := &model.PriceChange{
		ID:          uuid.NewString(),
		ProductID:   state.Product.ID,
		Actor:       actor,
		OldPrice:    state.CurrentPrice,
		NewPrice:    price,
		OldVersion:  cur.Version,
		NewVersion:  cur.Version + 1,
		TriggeredAt: trigger.At,
		ExecutedAt:  now,
	}
	entry := &model.AuditLogEntry{
		ID:           uuid.NewString(),
		Actor:        actor,
		Action:       model.AuditPriceChange,
		ResourceType: "product_price",
		ResourceID:   state.Product.ID,
		Before:       fmt.Sprintf("%.2f", state.CurrentPrice),
		After:        fmt.Sprintf("%.2f", price),
		Detail:       fmt.Sprintf("trigger %s at %s", trigger.Source, trigger.At.Format(time.RFC3339)),
		Timestamp:    now,
	}
	if err := e.commit(ctx, change, entry); err != nil {
		return nil, err
	}
	ev.Reason = fmt.Sprintf("%.2f -> %.2f", state.CurrentPrice, price)
	log.Info().Str("product", change.ProductID).Str("rule", rule.ID).
		Float64("old", change.OldPrice).Float64("new", change.NewPrice).Msg("price changed by rule")
	return change, nil
}

// commit writes change and entry and moves the price book in one step. Caller holds the product lock.
func (e *Engine) commit(ctx context.Context, change *model.PriceChange, entry *model.AuditLogEntry) error {
	applied := false
	err := e.ledger.RecordPriceChange(ctx, change, entry, func() error {
		if _, err := e.book.CompareAndSet(change.ProductID, change.OldVersion, change.NewPrice, change.Actor); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil && applied {
		// the ledger rolled back after the book moved; put the book back so neither side records the change
		if _, rerr := e.book.CompareAndSet(change.ProductID, change.NewVersion, change.OldPrice, change.Actor+":revert"); rerr != nil {
			log.Error().Err(rerr).Str("product", change.ProductID).Msg("failed to revert price after ledger failure")
		}
	}
	if err != nil {
		return fmt.Errorf("record price change: %w", err)
	}
	return nil
}

// reject records a conflict audit entry and alerts the rule owner.
func (e *Engine) reject(ctx context.Context, rule model.PricingRule, state model.ProductState, ev *Evaluation, reason string) {
	ev.advance(PhaseRejected)
	ev.Reason = reason

	entry := &model.AuditLogEntry{
		ID:           uuid.NewString(),
		Actor:        "rule:" + rule.ID,
		Action:       model.AuditPriceRejected,
		ResourceType: "product_price",
		ResourceID:   state.Product.ID,
		Before:       fmt.Sprintf("%.2f", state.CurrentPrice),
		After:        fmt.Sprintf("%.2f", ev.Candidate),
		Detail:       reason,
		Timestamp:    e.now(),
	}
	if err := e.ledger.RecordAudit(ctx, entry); err != nil {
		log.Error().Err(err).Str("rule", rule.ID).Msg("failed to record rule conflict")
	}
	log.Warn().Str("product", state.Product.ID).Str("rule", rule.ID).Str("reason", reason).Msg("rule rejected")

	if e.alerts != nil {
		e.alerts.Raise(model.Alert{
			Type:       model.AlertRuleConflict,
			Severity:   model.SeverityHigh,
			ProductIDs: []string{state.Product.ID},
			Recipient:  rule.Owner,
			Message:    fmt.Sprintf("rule %s could not change %s: %s", rule.ID, state.Product.ID, reason),
			RecommendedActions: []string{
				"review the rule's constraints",
				"disable the rule if it no longer applies",
			},
		})
	}
}

// ManualChange applies a user-requested price through the same lock, constraint check and ledger as rules.
func (e *Engine) ManualChange(ctx context.Context, productID string, price float64, actor string) (*model.PriceChange, error) {
	state, err := e.states.State(ctx, productID)
	if err != nil {
		return nil, err
	}
	price = model.RoundPrice(price)
	ctx = context.WithoutCancel(ctx)
	if v := state.Check(state.Product.Constraints, price); len(v) > 0 {
		entry := &model.AuditLogEntry{
			ID:           uuid.NewString(),
			Actor:        actor,
			Action:       model.AuditPriceRejected,
			ResourceType: "product_price",
			ResourceID:   productID,
			Before:       fmt.Sprintf("%.2f", state.CurrentPrice),
			After:        fmt.Sprintf("%.2f", price),
			Detail:       "manual: " + v.String(),
			Timestamp:    e.now(),
		}
		if err := e.ledger.RecordAudit(ctx, entry); err != nil {
			log.Error().Err(err).Str("product", productID).Msg("failed to record manual rejection")
		}
		return nil, fmt.Errorf("price %.2f rejected: %s", price, v)
	}

	unlock := e.locks.Lock(productID)
	defer unlock()

	cur, err := e.book.Get(productID)
	if err != nil {
		return nil, err
	}
	if cur.Version != state.PriceVersion {
		return nil, fmt.Errorf("%w: version %d, snapshot %d", errStaleState, cur.Version, state.PriceVersion)
	}
	now := e.now()
	change := &model.PriceChange{
		ID:          uuid.NewString(),
		ProductID:   productID,
		Actor:       actor,
		OldPrice:    state.CurrentPrice,
		NewPrice:    price,
		OldVersion:  cur.Version,
		NewVersion:  cur.Version + 1,
		TriggeredAt: now,
		ExecutedAt:  now,
	}
	entry := &model.AuditLogEntry{
		ID:           uuid.NewString(),
		Actor:        actor,
		Action:       model.AuditPriceChange,
		ResourceType: "product_price",
		ResourceID:   productID,
		Before:       fmt.Sprintf("%.2f", state.CurrentPrice),
		After:        fmt.Sprintf("%.2f", price),
		Detail:       "manual",
		Timestamp:    now,
	}
	if err := e.commit(ctx, change, entry); err != nil {
		return nil, err
	}
	return change, nil
}

// keyedMutex hands out one mutex per key. Entries are never removed; the key space is the catalog.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
