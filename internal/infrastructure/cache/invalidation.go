package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/kv"
)

// DefaultInvalidationChannel is the pub/sub channel invalidation events
// travel on
const DefaultInvalidationChannel = "cache:invalidation"

// InvalidationMessage tells other service instances to drop cached state.
// Either Tag or Pattern is set, never both.
type InvalidationMessage struct {
	TenantID  uuid.UUID `json:"tenant_id,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Pattern   string    `json:"pattern,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// InvalidationBus broadcasts cache invalidation events over the store's
// pub/sub channel so every instance applies them, not just the one that
// handled the triggering request.
type InvalidationBus struct {
	store   kv.Store
	channel string
	logger  *zap.Logger

	mu      sync.Mutex
	sub     kv.Subscription
	done    chan struct{}
	running bool
}

// InvalidationBusOption configures an InvalidationBus
type InvalidationBusOption func(*InvalidationBus)

// WithInvalidationChannel overrides the pub/sub channel name
func WithInvalidationChannel(channel string) InvalidationBusOption {
	return func(b *InvalidationBus) {
		b.channel = channel
	}
}

// NewInvalidationBus creates a bus on the given store
func NewInvalidationBus(store kv.Store, logger *zap.Logger, opts ...InvalidationBusOption) *InvalidationBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &InvalidationBus{
		store:   store,
		channel: DefaultInvalidationChannel,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Apply executes an invalidation event against the local cache. Instances
// pass this as the bus handler so flushes triggered elsewhere are mirrored.
func (c *TaggedCache) Apply(ctx context.Context, msg InvalidationMessage) error {
	switch {
	case msg.Tag != "":
		return c.InvalidateTag(ctx, msg.TenantID, msg.Tag)
	case msg.Pattern != "":
		return c.InvalidatePattern(ctx, msg.TenantID, msg.Pattern)
	case msg.TenantID != uuid.Nil:
		return c.ClearTenant(ctx, msg.TenantID)
	}
	return nil
}

// Publish sends an invalidation event to all subscribed instances
func (b *InvalidationBus) Publish(ctx context.Context, msg InvalidationMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal invalidation message: %w", err)
	}
	if err := b.store.Publish(ctx, b.channel, string(data)); err != nil {
		b.logger.Error("failed to publish invalidation",
			zap.String("channel", b.channel),
			zap.Error(err))
		return err
	}
	return nil
}

// Start subscribes to the channel and invokes handler for every event until
// Stop is called. Malformed messages are logged and skipped.
func (b *InvalidationBus) Start(ctx context.Context, handler func(InvalidationMessage)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("invalidation bus already started")
	}

	sub, err := b.store.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", b.channel, err)
	}
	b.sub = sub
	b.done = make(chan struct{})
	b.running = true

	go func() {
		defer close(b.done)
		for raw := range sub.Channel() {
			var msg InvalidationMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				b.logger.Warn("dropping malformed invalidation message", zap.Error(err))
				continue
			}
			handler(msg)
		}
	}()
	return nil
}

// Stop closes the subscription and waits for the handler loop to drain
func (b *InvalidationBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	_ = b.sub.Close()
	<-b.done
	b.running = false
}
