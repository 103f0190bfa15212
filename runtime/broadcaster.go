package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultDeliveryTimeout = 2 * time.Second

// Broadcaster delivers an event to every connection subscribed to a channel.
// A failing connection never stops delivery to the others: it is evicted
// from the registry and closed, and the broadcast moves on.
type Broadcaster struct {
	log             *slog.Logger
	registry        contract.IRegistry
	deliveryTimeout time.Duration
	metrics         *observability.Metrics
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry, deliveryTimeout time.Duration) *Broadcaster {
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}
	return &Broadcaster{log: log, registry: registry, deliveryTimeout: deliveryTimeout}
}

func (b *Broadcaster) WithMetrics(metrics *observability.Metrics) *Broadcaster {
	b.metrics = metrics
	return b
}

// Broadcast returns the number of connections the event reached.
// Deliveries are detached from ctx cancellation so a sender hanging up
// mid-broadcast does not starve the other members.
func (b *Broadcaster) Broadcast(ctx context.Context, channelID chat.ChannelID, e event.DomainEvent) int {
	members := b.registry.MembersOf(channelID)
	if len(members) == 0 {
		b.log.Debug("No member to deliver to", "channel", channelID)
		return 0
	}

	base := context.WithoutCancel(ctx)
	delivered := 0
	for _, conn := range members {
		err := b.deliver(base, conn, e)
		b.metrics.Delivered(err == nil)
		if err != nil {
			b.log.Warn("Delivery failed, evicting connection",
				"channel", channelID, "connection", conn.ID(), "error", err)
			b.evict(conn)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Broadcaster) deliver(ctx context.Context, conn contract.Connection, e event.DomainEvent) error {
	deliveryCtx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
	defer cancel()
	if err := conn.Consume(deliveryCtx, e); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrDelivery, err)
	}
	return nil
}

func (b *Broadcaster) evict(conn contract.Connection) {
	b.metrics.Evicted()
	if err := b.registry.LeaveAll(conn); err != nil {
		b.log.Error("Registry cleanup failed", "connection", conn.ID(), "error", err)
	}
	if err := conn.Close(); err != nil {
		b.log.Debug("Closing evicted connection", "connection", conn.ID(), "error", err)
	}
}
