package model

import "time"

// AuditAction is the kind of audited event.
type AuditAction string

const (
	AuditPriceChange   AuditAction = "price_change"
	AuditPriceRejected AuditAction = "price_change_rejected"
	AuditRuleCreated   AuditAction = "rule_created"
	AuditRuleDisabled  AuditAction = "rule_disabled"
	AuditSensitiveRead AuditAction = "sensitive_read"
)

// AuditLogEntry is an append-only audit record.
type AuditLogEntry struct {
	ID           string      `json:"id"`
	Actor        string      `json:"actor"` // user id or "rule:<id>"
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id"`
	Before       string      `json:"before,omitempty"`
	After        string      `json:"after,omitempty"`
	Detail       string      `json:"detail,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// PriceChange is the outbound price-mutation command.
type PriceChange struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Actor       string    `json:"actor"`
	OldPrice    float64   `json:"old_price"`
	NewPrice    float64   `json:"new_price"`
	OldVersion  int64     `json:"old_version"`
	NewVersion  int64     `json:"new_version"`
	TriggeredAt time.Time `json:"triggered_at"`
	ExecutedAt  time.Time `json:"executed_at"`
}
