package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/model"
)

var (
	ErrNotFound  = errors.New("rule not found")
	ErrDuplicate = errors.New("rule already exists")
)

// RuleSink persists rule definitions and audit entries.
type RuleSink interface {
	RecordRule(ctx context.Context, rule *model.PricingRule) error
	RecordAudit(ctx context.Context, entry *model.AuditLogEntry) error
}

// Registry owns rule definitions. Rules are validated on the way in and disabled, never removed, on the way out.
type Registry struct {
	mu      sync.RWMutex
	rules   map[string]model.PricingRule
	catalog Catalog
	sink    RuleSink
	now     func() time.Time
}

// NewRegistry creates an empty Registry. sink may be nil.
func NewRegistry(catalog Catalog, sink RuleSink) *Registry {
	return &Registry{
		rules:   make(map[string]model.PricingRule),
		catalog: catalog,
		sink:    sink,
		now:     time.Now,
	}
}

// Create validates and stores a rule. An empty ID is assigned. Validation failures wrap ErrInvalidRule
// and nothing is stored.
func (r *Registry) Create(ctx context.Context, rule model.PricingRule, actor string) (model.PricingRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Combinator == "" {
		rule.Combinator = model.CombinatorAnd
	}
	if err := Validate(rule, r.catalog); err != nil {
		return model.PricingRule{}, err
	}
	rule.ProductIDs = append([]string(nil), rule.ProductIDs...)
	rule.Conditions = append([]model.Condition(nil), rule.Conditions...)
	rule.CreatedAt = r.now()
	rule.DisabledAt = time.Time{}

	r.mu.Lock()
	if _, ok := r.rules[rule.ID]; ok {
		r.mu.Unlock()
		return model.PricingRule{}, fmt.Errorf("%w: %s", ErrDuplicate, rule.ID)
	}
	r.rules[rule.ID] = rule
	r.mu.Unlock()

	r.persist(ctx, &rule, &model.AuditLogEntry{
		Actor:        actor,
		Action:       model.AuditRuleCreated,
		ResourceType: "rule",
		ResourceID:   rule.ID,
		After:        fmt.Sprintf("enabled=%t priority=%d action=%s", rule.Enabled, rule.Priority, rule.Action.Kind),
	})
	log.Info().Str("rule", rule.ID).Str("actor", actor).Bool("enabled", rule.Enabled).Msg("rule created")
	return rule, nil
}

// Disable retires a rule. Disabling an already disabled rule is a no-op.
func (r *Registry) Disable(ctx context.Context, id, actor string) error {
	r.mu.Lock()
	rule, ok := r.rules[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !rule.Enabled {
		r.mu.Unlock()
		return nil
	}
	rule.Enabled = false
	rule.DisabledAt = r.now()
	r.rules[id] = rule
	r.mu.Unlock()

	r.persist(ctx, &rule, &model.AuditLogEntry{
		Actor:        actor,
		Action:       model.AuditRuleDisabled,
		ResourceType: "rule",
		ResourceID:   id,
		Before:       "enabled",
		After:        "disabled",
	})
	log.Info().Str("rule", id).Str("actor", actor).Msg("rule disabled")
	return nil
}

func (r *Registry) persist(ctx context.Context, rule *model.PricingRule, entry *model.AuditLogEntry) {
	if r.sink == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = r.now()
	if err := r.sink.RecordRule(ctx, rule); err != nil {
		log.Error().Err(err).Str("rule", rule.ID).Msg("failed to record rule")
	}
	if err := r.sink.RecordAudit(ctx, entry); err != nil {
		log.Error().Err(err).Str("rule", rule.ID).Msg("failed to record rule audit")
	}
}

// Get returns a rule by id, enabled or not.
func (r *Registry) Get(id string) (model.PricingRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return model.PricingRule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rule, nil
}

// ForProduct returns the enabled rules targeting productID, highest priority first, ties by id.
func (r *Registry) ForProduct(productID string) []model.PricingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.PricingRule
	for _, rule := range r.rules {
		if rule.Enabled && rule.Targets(productID) {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
