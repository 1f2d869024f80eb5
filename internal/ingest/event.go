// Package ingest consumes market events from Kafka and publishes outbound price changes and reorders.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"PriceSentinel/internal/model"
)

// Event types carried in the envelope.
const (
	TypePricePoint  = "price_point"
	TypeSales       = "sales"
	TypeInventory   = "inventory"
	TypePriceChange = "price_change"
	TypeReorder     = "reorder"
)

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrMalformed   = errors.New("malformed event")
)

// Envelope is the wire format of every topic: {"type": ..., "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is a decoded inbound envelope. Exactly one of the record fields is set.
type Event struct {
	Type       string
	ProductID  string
	PricePoint *model.PricePoint
	Sales      *model.SalesRecord
	Inventory  *model.InventoryObservation
}

// Decode parses an inbound envelope.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev := Event{Type: env.Type}
	var target any
	switch env.Type {
	case TypePricePoint:
		ev.PricePoint = &model.PricePoint{}
		target = ev.PricePoint
	case TypeSales:
		ev.Sales = &model.SalesRecord{}
		target = ev.Sales
	case TypeInventory:
		ev.Inventory = &model.InventoryObservation{}
		target = ev.Inventory
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return Event{}, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}

	switch {
	case ev.PricePoint != nil:
		ev.ProductID = ev.PricePoint.ProductID
	case ev.Sales != nil:
		ev.ProductID = ev.Sales.ProductID
	case ev.Inventory != nil:
		ev.ProductID = ev.Inventory.ProductID
	}
	if ev.ProductID == "" {
		return Event{}, fmt.Errorf("%w: %s without product_id", ErrMalformed, env.Type)
	}
	return ev, nil
}

func encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
