//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/storage"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type IChatService interface {
	JoinChannel(conn contract.Connection, cmd chat.JoinCommand) (chat.ChannelID, error)
	LeaveChannel(conn contract.Connection, cmd chat.LeaveCommand) (chat.ChannelID, error)
	Disconnect(conn contract.Connection)
	PostMessage(ctx context.Context, cmd chat.SendMessageCommand) (chat.Message, error)
	GetMessages(cmd chat.GetHistoryCommand) ([]chat.Message, *chat.Cursor, error)
	SearchMessages(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error)
}

type ChatService struct {
	log         *slog.Logger
	repository  storage.IMessageRepository
	index       storage.IMessageIndex
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	toIndex     chan<- chat.Message
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewChatService wires the use cases together. toIndex may be nil when
// full-text search is disabled; messages are then never queued for indexing.
func NewChatService(
	log *slog.Logger,
	repository storage.IMessageRepository,
	index storage.IMessageIndex,
	registry contract.IRegistry,
	broadcaster contract.IBroadcaster,
	toIndex chan<- chat.Message,
) *ChatService {
	return &ChatService{
		log:         log,
		repository:  repository,
		index:       index,
		registry:    registry,
		broadcaster: broadcaster,
		toIndex:     toIndex,
		now:         time.Now,
	}
}

func (s *ChatService) WithMetrics(metrics *observability.Metrics) *ChatService {
	s.metrics = metrics
	return s
}

func (s *ChatService) JoinChannel(conn contract.Connection, cmd chat.JoinCommand) (chat.ChannelID, error) {
	if err := chat.Validate(cmd); err != nil {
		return "", err
	}
	channelID := cmd.ChannelID()
	s.registry.Join(conn, channelID)
	s.log.Debug("Connection joined channel", "connection", conn.ID(), "channel", channelID)
	return channelID, nil
}

func (s *ChatService) LeaveChannel(conn contract.Connection, cmd chat.LeaveCommand) (chat.ChannelID, error) {
	if err := chat.Validate(cmd); err != nil {
		return "", err
	}
	channelID := cmd.ChannelID()
	s.registry.Leave(conn, channelID)
	s.log.Debug("Connection left channel", "connection", conn.ID(), "channel", channelID)
	return channelID, nil
}

func (s *ChatService) Disconnect(conn contract.Connection) {
	if err := s.registry.LeaveAll(conn); err != nil {
		s.log.Error("Registry cleanup failed", "connection", conn.ID(), "error", err)
	}
}

// PostMessage stores the message then broadcasts it to the channel.
// The broadcast happens even when the store failed, so a live conversation
// keeps flowing; the returned error tells the sender its message was not kept.
func (s *ChatService) PostMessage(ctx context.Context, cmd chat.SendMessageCommand) (chat.Message, error) {
	if err := chat.Validate(cmd); err != nil {
		return chat.Message{}, err
	}
	msg := chat.Message{
		ID:       uuid.New(),
		Sender:   cmd.From,
		Receiver: cmd.To,
		Text:     cmd.Text,
		SentAt:   s.now().UTC(),
	}

	_, storeErr := s.repository.StoreMessage(msg)
	s.metrics.MessagePosted(storeErr == nil)
	if storeErr != nil {
		s.log.Error("Message not persisted", "id", msg.ID, "channel", msg.Channel(), "error", storeErr)
	}

	delivered := s.broadcaster.Broadcast(ctx, msg.Channel(), event.NewMessageReceived(msg))
	s.log.Debug("Message broadcast", "id", msg.ID, "channel", msg.Channel(), "delivered", delivered)

	if storeErr == nil {
		s.enqueueIndexing(msg)
	}
	return msg, storeErr
}

func (s *ChatService) GetMessages(cmd chat.GetHistoryCommand) ([]chat.Message, *chat.Cursor, error) {
	if err := chat.Validate(cmd); err != nil {
		return nil, nil, err
	}
	return s.repository.GetMessages(cmd.ChannelID(), cmd.Limit, cmd.Before)
}

func (s *ChatService) SearchMessages(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error) {
	if err := chat.Validate(cmd); err != nil {
		return nil, err
	}
	return s.index.Search(ctx, cmd.ChannelID(), cmd.Terms, cmd.Limit)
}

func (s *ChatService) enqueueIndexing(msg chat.Message) {
	if s.toIndex == nil {
		return
	}
	select {
	case s.toIndex <- msg:
	default:
		s.metrics.IndexDropped()
		s.log.Warn("Index queue full, message not indexed", "id", msg.ID)
	}
}
