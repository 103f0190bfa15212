package services

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/sink"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newIdentifiedSession(t *testing.T, relay testRelay, identity chat.UserID) (*Session, *sink.ConnectionSink) {
	t.Helper()
	conn := sink.NewConnectionSink(8)
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), conn, relay.service)
	require.NoError(t, session.Handshake(identity))
	return session, conn
}

func TestSession_Lifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newTestRelay(t, openRepository(t), nil)
	conn := sink.NewConnectionSink(8)
	session := NewSession(slog.Default(), conn, relay.service)

	// Given a fresh connection
	req.Equal(Connected, session.State())

	// When the identity is established
	req.NoError(session.Handshake("3"))
	req.Equal(Idle, session.State())
	req.Equal(chat.UserID("3"), session.Identity())

	// When joining two channels
	channelID, err := session.Join(ctx, chat.JoinCommand{From: "3", To: "7"})
	req.NoError(err)
	req.Equal(chat.ChannelID("3_7"), channelID)
	req.Equal(event.ChannelJoined{Channel: "3_7", Peer: "7"}, nextEvent(t, conn))
	_, err = session.Join(ctx, chat.JoinCommand{From: "3", To: "10"})
	req.NoError(err)
	nextEvent(t, conn)
	req.Equal(InChannel, session.State())

	// When leaving one of them, still in a channel
	_, err = session.Leave(ctx, chat.LeaveCommand{From: "3", To: "7"})
	req.NoError(err)
	req.Equal(event.ChannelLeft{Channel: "3_7", Peer: "7"}, nextEvent(t, conn))
	req.Equal(InChannel, session.State())

	// When leaving the last one, back to idle
	_, err = session.Leave(ctx, chat.LeaveCommand{From: "3", To: "10"})
	req.NoError(err)
	nextEvent(t, conn)
	req.Equal(Idle, session.State())

	// When closing, twice
	req.NoError(session.Close())
	req.NoError(session.Close())
	req.Equal(Closed, session.State())
	req.Equal(0, relay.registry.Stats().Connections)
}

func TestSession_Both_Members_Receive_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newTestRelay(t, openRepository(t), nil)
	three, threeConn := newIdentifiedSession(t, relay, "3")
	seven, sevenConn := newIdentifiedSession(t, relay, "7")

	// Given 3 and 7 joined their channel
	_, err := three.Join(ctx, chat.JoinCommand{From: "3", To: "7"})
	req.NoError(err)
	_, err = seven.Join(ctx, chat.JoinCommand{From: "7", To: "3"})
	req.NoError(err)
	nextEvent(t, threeConn)
	nextEvent(t, sevenConn)

	// When 3 sends "hi"
	msg, err := three.Send(ctx, chat.SendMessageCommand{From: "3", To: "7", Text: "hi"})
	req.NoError(err)

	// Then both get exactly one receive_message
	expected := event.NewMessageReceived(msg)
	req.Equal(expected, nextEvent(t, threeConn))
	req.Equal(expected, nextEvent(t, sevenConn))
	requireNoEvent(t, threeConn)
	requireNoEvent(t, sevenConn)
}

func TestSession_Disconnected_Peer_Receives_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newTestRelay(t, openRepository(t), nil)
	three, threeConn := newIdentifiedSession(t, relay, "3")
	seven, sevenConn := newIdentifiedSession(t, relay, "7")
	_, _ = three.Join(ctx, chat.JoinCommand{From: "3", To: "7"})
	_, _ = seven.Join(ctx, chat.JoinCommand{From: "7", To: "3"})
	nextEvent(t, threeConn)
	nextEvent(t, sevenConn)

	// Given 7 disconnected
	req.NoError(seven.Close())

	// When 3 sends a message
	msg, err := three.Send(ctx, chat.SendMessageCommand{From: "3", To: "7", Text: "still there?"})
	req.NoError(err)

	// Then only 3 receives it
	req.Equal(event.NewMessageReceived(msg), nextEvent(t, threeConn))
	requireNoEvent(t, sevenConn)

	// And 7 finds it in the history later
	history, _, err := relay.service.GetMessages(chat.GetHistoryCommand{UserA: "7", UserB: "3"})
	req.NoError(err)
	req.Equal([]chat.Message{msg}, history)
}

func TestSession_Eviction_Is_Observed_Through_Connection_Teardown(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newTestRelay(t, openRepository(t), nil)
	three, threeConn := newIdentifiedSession(t, relay, "3")
	seven, sevenConn := newIdentifiedSession(t, relay, "7")
	_, _ = three.Join(ctx, chat.JoinCommand{From: "3", To: "7"})
	_, _ = seven.Join(ctx, chat.JoinCommand{From: "7", To: "3"})
	nextEvent(t, threeConn)
	nextEvent(t, sevenConn)

	// Given 7's outbound stream is broken
	req.NoError(sevenConn.Close())

	// When 3 sends a message, the broadcaster evicts 7
	_, err := three.Send(ctx, chat.SendMessageCommand{From: "3", To: "7", Text: "hello?"})
	req.NoError(err)
	nextEvent(t, threeConn)
	members := relay.registry.MembersOf("3_7")
	req.Len(members, 1)
	req.Equal(threeConn.ID(), members[0].ID())

	// Then 7's session only learns it from the teardown signal
	select {
	case <-sevenConn.Done():
	default:
		req.Fail("evicted connection should be torn down")
	}
	req.Equal(InChannel, seven.State())

	// And closing it afterwards is clean
	req.NoError(seven.Close())
	req.Equal(Closed, seven.State())
	req.Equal(1, relay.registry.Stats().Connections)
}

func TestSession_Persistence_Failure_Reported_To_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	relay := newTestRelay(t, repository, nil)
	three, threeConn := newIdentifiedSession(t, relay, "3")
	seven, sevenConn := newIdentifiedSession(t, relay, "7")
	_, _ = three.Join(ctx, chat.JoinCommand{From: "3", To: "7"})
	_, _ = seven.Join(ctx, chat.JoinCommand{From: "7", To: "3"})
	nextEvent(t, threeConn)
	nextEvent(t, sevenConn)

	repository.EXPECT().StoreMessage(gomock.Any()).Return(chat.Cursor(""), errors.ErrPersistence)

	// When 3 sends while the store is down
	msg, err := three.Send(ctx, chat.SendMessageCommand{From: "3", To: "7", Text: "hi"})

	// Then 3 is told about the failure, the broadcast still happened
	req.ErrorIs(err, errors.ErrPersistence)
	req.Equal(event.NewMessageReceived(msg), nextEvent(t, threeConn))
	req.Equal(event.NewMessageReceived(msg), nextEvent(t, sevenConn))

	// And the session is still usable
	req.Equal(InChannel, three.State())
}

func TestSession_Guards(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, openRepository(t), nil)

	tests := []struct {
		description string
		run         func(s *Session) error
		handshake   bool
		wantErr     error
		wantState   SessionState
	}{
		{
			"Should require a handshake before joining",
			func(s *Session) error {
				_, err := s.Join(ctx, chat.JoinCommand{From: "3", To: "7"})
				return err
			},
			false, errors.ErrHandshakeRequired, Connected,
		},
		{
			"Should require a handshake before sending",
			func(s *Session) error {
				_, err := s.Send(ctx, chat.SendMessageCommand{From: "3", To: "7", Text: "hi"})
				return err
			},
			false, errors.ErrHandshakeRequired, Connected,
		},
		{
			"Should reject an invalid identity",
			func(s *Session) error { return s.Handshake("3_7") },
			false, errors.ErrValidation, Connected,
		},
		{
			"Should reject a second handshake",
			func(s *Session) error { return s.Handshake("4") },
			true, errors.ErrInvalidTransition, Idle,
		},
		{
			"Should reject joining on behalf of someone else",
			func(s *Session) error {
				_, err := s.Join(ctx, chat.JoinCommand{From: "4", To: "7"})
				return err
			},
			true, errors.ErrIdentityMismatch, Idle,
		},
		{
			"Should reject sending to a channel not joined",
			func(s *Session) error {
				_, err := s.Send(ctx, chat.SendMessageCommand{From: "3", To: "7", Text: "hi"})
				return err
			},
			true, errors.ErrNotJoined, Idle,
		},
		{
			"Should reject a blank message",
			func(s *Session) error {
				_, err := s.Send(ctx, chat.SendMessageCommand{From: "3", To: "7", Text: ""})
				return err
			},
			true, errors.ErrValidation, Idle,
		},
		{
			"Should reject a malformed join",
			func(s *Session) error {
				_, err := s.Join(ctx, chat.JoinCommand{From: "3"})
				return err
			},
			true, errors.ErrValidation, Idle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			session := NewSession(slog.Default(), sink.NewConnectionSink(8), relay.service)
			if tt.handshake {
				req.NoError(session.Handshake("3"))
			}

			err := tt.run(session)

			req.ErrorIs(err, tt.wantErr)
			req.Equal(tt.wantState, session.State())
		})
	}
}

func TestSession_Closed_Is_Terminal(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newTestRelay(t, openRepository(t), nil)
	session, _ := newIdentifiedSession(t, relay, "3")

	req.NoError(session.Close())

	_, err := session.Join(ctx, chat.JoinCommand{From: "3", To: "7"})
	req.ErrorIs(err, errors.ErrSessionClosed)
	_, err = session.Send(ctx, chat.SendMessageCommand{From: "3", To: "7", Text: "hi"})
	req.ErrorIs(err, errors.ErrSessionClosed)
	req.ErrorIs(session.Handshake("3"), errors.ErrSessionClosed)
	req.Equal(Closed, session.State())
}

func TestSession_Close_Disconnects_Through_Service(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockIChatService(ctrl)
	conn := mocks.NewMockConnection(ctrl)
	conn.EXPECT().ID().Return(chat.ConnectionID("c1")).AnyTimes()

	// Then the registry cleanup and the connection close happen once
	service.EXPECT().Disconnect(conn).Times(1)
	conn.EXPECT().Close().Return(nil).Times(1)

	session := NewSession(slog.Default(), conn, service)
	req.NoError(session.Close())
	req.NoError(session.Close())
}
