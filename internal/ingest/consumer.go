package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"PriceSentinel/internal/model"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler applies decoded events.
type Handler interface {
	HandlePricePoint(ctx context.Context, pp model.PricePoint) error
	HandleSales(ctx context.Context, rec model.SalesRecord) error
	HandleInventory(ctx context.Context, obs model.InventoryObservation) error
}

const (
	DefaultFetchBackoff    = 200 * time.Millisecond
	DefaultMaxFetchBackoff = 10 * time.Second
)

// Consumer reads envelopes from Kafka and hands them to the pool, keyed by product.
type Consumer struct {
	reader  MessageReader
	pool    *ShardedPool
	handler Handler

	minBackoff time.Duration
	maxBackoff time.Duration

	// mu guards offsets and orders commits
	mu      sync.Mutex
	offsets map[partitionKey]*partitionQueue
}

type partitionKey struct {
	topic     string
	partition int
}

// partitionQueue holds a partition's fetched messages in offset order until everything before them is handled.
type partitionQueue struct {
	pending []kafka.Message
	done    map[int64]bool
}

func NewConsumer(reader MessageReader, pool *ShardedPool, handler Handler) *Consumer {
	return &Consumer{
		reader:     reader,
		pool:       pool,
		handler:    handler,
		minBackoff: DefaultFetchBackoff,
		maxBackoff: DefaultMaxFetchBackoff,
		offsets:    make(map[partitionKey]*partitionQueue),
	}
}

// Run consumes until ctx is cancelled. Malformed messages are logged and committed so they are not redelivered.
// A partition's offset only advances past messages that were handled, so an event interrupted by shutdown
// and every event after it on that partition are delivered again.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Dur("retry_in", backoff).Msg("error fetching message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff
		c.track(msg)

		ev, err := Decode(msg.Value)
		if err != nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Int("partition", msg.Partition).Msg("dropping undecodable event")
			c.done(ctx, msg)
			continue
		}

		m := msg
		if err := c.pool.Submit(ctx, ev.ProductID, func() { c.process(ctx, ev, m) }); err != nil {
			if errors.Is(err, ErrPoolStopped) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) process(ctx context.Context, ev Event, msg kafka.Message) {
	if err := Dispatch(ctx, c.handler, ev); err != nil {
		if ctx.Err() != nil {
			// left pending so the partition offset stays behind it
			log.Warn().Str("type", ev.Type).Str("product", ev.ProductID).Msg("event interrupted by shutdown")
			return
		}
		log.Error().Err(err).Str("type", ev.Type).Str("product", ev.ProductID).Msg("event handling failed")
	}
	c.done(ctx, msg)
}

func (c *Consumer) track(msg kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := partitionKey{msg.Topic, msg.Partition}
	q, ok := c.offsets[key]
	if !ok {
		q = &partitionQueue{done: make(map[int64]bool)}
		c.offsets[key] = q
	}
	q.pending = append(q.pending, msg)
}

// done marks msg handled and commits the newest message of its partition with nothing unhandled before it.
func (c *Consumer) done(ctx context.Context, msg kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.offsets[partitionKey{msg.Topic, msg.Partition}]
	if q == nil {
		return
	}
	q.done[msg.Offset] = true

	var upTo *kafka.Message
	for len(q.pending) > 0 && q.done[q.pending[0].Offset] {
		head := q.pending[0]
		delete(q.done, head.Offset)
		q.pending = q.pending[1:]
		upTo = &head
	}
	if upTo != nil {
		c.commit(ctx, *upTo)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
	}
}

// Dispatch routes a decoded event to the matching handler method.
func Dispatch(ctx context.Context, h Handler, ev Event) error {
	switch {
	case ev.PricePoint != nil:
		return h.HandlePricePoint(ctx, *ev.PricePoint)
	case ev.Sales != nil:
		return h.HandleSales(ctx, *ev.Sales)
	case ev.Inventory != nil:
		return h.HandleInventory(ctx, *ev.Inventory)
	}
	return ErrUnknownType
}
