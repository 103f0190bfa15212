package sink

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"sync"

	"github.com/google/uuid"
)

const defaultBufferSize = 64

// ConnectionSink is the outbound queue of one client connection.
// The transport drains Events() and writes each event on the wire;
// Done() is closed once the connection is torn down.
type ConnectionSink struct {
	id        chat.ConnectionID
	events    chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &ConnectionSink{
		id:     chat.ConnectionID(uuid.NewString()),
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *ConnectionSink) ID() chat.ConnectionID { return s.id }

// Consume enqueues e, waiting for room until ctx expires.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return errors.ErrSlowConsumer
	}
}

// Close is idempotent. Queued events are dropped.
func (s *ConnectionSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *ConnectionSink) Events() <-chan event.DomainEvent { return s.events }

func (s *ConnectionSink) Done() <-chan struct{} { return s.done }
