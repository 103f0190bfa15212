package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type SessionState int

const (
	Connected SessionState = iota
	Idle
	InChannel
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Idle:
		return "idle"
	case InChannel:
		return "in_channel"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Session drives one client connection through its lifecycle:
//
//	Connected --Handshake--> Idle --Join--> InChannel --Leave(last)--> Idle
//	any state --Close--> Closed (terminal)
//
// A rejected request never changes the state.
// An eviction by the broadcaster only closes the connection; the session
// learns about it when the transport tears down and calls Close.
type Session struct {
	mu       sync.Mutex
	log      *slog.Logger
	conn     contract.Connection
	service  IChatService
	identity chat.UserID
	state    SessionState
	joined   map[chat.ChannelID]struct{}
}

func NewSession(log *slog.Logger, conn contract.Connection, service IChatService) *Session {
	return &Session{
		log:     log.With("connection", conn.ID()),
		conn:    conn,
		service: service,
		state:   Connected,
		joined:  make(map[chat.ChannelID]struct{}),
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Identity() chat.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Handshake establishes who is behind the connection. It is accepted once.
func (s *Session) Handshake(identity chat.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Closed:
		return errors.ErrSessionClosed
	case Connected:
	default:
		return fmt.Errorf("%w: handshake in state %s", errors.ErrInvalidTransition, s.state)
	}
	if err := chat.ValidateUserID(identity); err != nil {
		return err
	}
	s.identity = identity
	s.state = Idle
	s.log = s.log.With("user", identity)
	return nil
}

// Join subscribes the session to the channel it shares with cmd.To
// and acknowledges with a ChannelJoined event.
func (s *Session) Join(ctx context.Context, cmd chat.JoinCommand) (chat.ChannelID, error) {
	channelID, err := s.join(cmd)
	if err != nil {
		return "", err
	}
	s.reply(ctx, event.ChannelJoined{Channel: channelID, Peer: cmd.To})
	return channelID, nil
}

func (s *Session) join(cmd chat.JoinCommand) (chat.ChannelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIdentified(cmd.From); err != nil {
		return "", err
	}
	channelID, err := s.service.JoinChannel(s.conn, cmd)
	if err != nil {
		return "", err
	}
	s.joined[channelID] = struct{}{}
	s.state = InChannel
	s.log.Info("Joined channel", "channel", channelID)
	return channelID, nil
}

// Leave unsubscribes the session from one channel. Leaving a channel
// never joined is accepted and still acknowledged.
func (s *Session) Leave(ctx context.Context, cmd chat.LeaveCommand) (chat.ChannelID, error) {
	channelID, err := s.leave(cmd)
	if err != nil {
		return "", err
	}
	s.reply(ctx, event.ChannelLeft{Channel: channelID, Peer: cmd.To})
	return channelID, nil
}

func (s *Session) leave(cmd chat.LeaveCommand) (chat.ChannelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIdentified(cmd.From); err != nil {
		return "", err
	}
	channelID, err := s.service.LeaveChannel(s.conn, cmd)
	if err != nil {
		return "", err
	}
	delete(s.joined, channelID)
	if len(s.joined) == 0 {
		s.state = Idle
	}
	s.log.Info("Left channel", "channel", channelID)
	return channelID, nil
}

// Send persists and broadcasts a message to a channel the session joined.
// A persistence error is returned alongside the message, which has still
// been broadcast.
func (s *Session) Send(ctx context.Context, cmd chat.SendMessageCommand) (chat.Message, error) {
	if err := s.checkCanSend(cmd); err != nil {
		return chat.Message{}, err
	}
	return s.service.PostMessage(ctx, cmd)
}

func (s *Session) checkCanSend(cmd chat.SendMessageCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIdentified(cmd.From); err != nil {
		return err
	}
	if err := chat.Validate(cmd); err != nil {
		return err
	}
	if _, ok := s.joined[cmd.ChannelID()]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrNotJoined, cmd.ChannelID())
	}
	return nil
}

// Close releases every subscription and the underlying connection.
// Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil
	}
	s.state = Closed
	clear(s.joined)
	s.mu.Unlock()

	s.service.Disconnect(s.conn)
	s.log.Info("Session closed")
	return s.conn.Close()
}

// checkIdentified must be called with the lock held.
func (s *Session) checkIdentified(from chat.UserID) error {
	switch s.state {
	case Closed:
		return errors.ErrSessionClosed
	case Connected:
		return errors.ErrHandshakeRequired
	}
	if from != s.identity {
		return fmt.Errorf("%w: got %q", errors.ErrIdentityMismatch, from)
	}
	return nil
}

// Reply pushes an event to this session's connection only.
func (s *Session) Reply(ctx context.Context, e event.DomainEvent) error {
	if s.State() == Closed {
		return errors.ErrSessionClosed
	}
	return s.conn.Consume(ctx, e)
}

func (s *Session) reply(ctx context.Context, e event.DomainEvent) {
	if err := s.Reply(ctx, e); err != nil {
		s.log.Warn("Reply not delivered", "channel", e.ChannelID(), "error", err)
	}
}
