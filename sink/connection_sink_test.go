package sink

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionSink_Consume_Then_Drain(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(2)
	evt := event.ChannelJoined{Channel: "3_7", Peer: "7"}

	req.NoError(s.Consume(context.Background(), evt))

	select {
	case got := <-s.Events():
		req.Equal(evt, got)
	case <-time.After(time.Second):
		req.Fail("event should have been queued")
	}
}

func TestConnectionSink_Full_Queue_Is_Slow_Consumer(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(1)

	// Given a full queue nobody drains
	req.NoError(s.Consume(context.Background(), event.ChannelJoined{Channel: "3_7"}))

	// When another event arrives with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Consume(ctx, event.ChannelLeft{Channel: "3_7"})

	// Then the connection is reported as slow
	req.ErrorIs(err, errors.ErrSlowConsumer)
}

func TestConnectionSink_Closed(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(0)

	req.NoError(s.Close())
	req.NoError(s.Close())

	err := s.Consume(context.Background(), event.ChannelJoined{Channel: "3_7"})
	req.ErrorIs(err, errors.ErrConnectionClosed)

	select {
	case <-s.Done():
	default:
		req.Fail("done should be closed")
	}
}

func TestConnectionSink_Close_Unblocks_Pending_Consume(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(1)
	req.NoError(s.Consume(context.Background(), event.ChannelJoined{Channel: "3_7"}))

	result := make(chan error, 1)
	go func() {
		result <- s.Consume(context.Background(), event.ChannelJoined{Channel: "3_7"})
	}()

	time.Sleep(20 * time.Millisecond)
	req.NoError(s.Close())

	select {
	case err := <-result:
		req.ErrorIs(err, errors.ErrConnectionClosed)
	case <-time.After(time.Second):
		req.Fail("consume should have returned after close")
	}
}

func TestConnectionSink_Ids_Are_Unique(t *testing.T) {
	req := require.New(t)
	req.NotEqual(NewConnectionSink(1).ID(), NewConnectionSink(1).ID())
}
