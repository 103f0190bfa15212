//go:generate go run go.uber.org/mock/mockgen -source=message_index.go -destination=../../mocks/mock_message_index.go -package=mocks
package storage

import (
	"chat-relay/domain/chat"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/search"
	"github.com/google/uuid"
)

const (
	indexFieldID       = "_id"
	indexFieldChannel  = "channel"
	indexFieldSender   = "sender_id"
	indexFieldReceiver = "receiver_id"
	indexFieldText     = "message_text"
	indexFieldSentAt   = "sent_at"

	DefaultSearchLimit = 20
)

type IMessageIndex interface {
	Index(message chat.Message) error
	Search(ctx context.Context, channel chat.ChannelID, terms string, limit int) ([]chat.Message, error)
}

// MessageIndex keeps a full-text index of the persisted messages.
// It is fed asynchronously and may lag behind the message repository.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

func (i *MessageIndex) Index(message chat.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(indexFieldChannel, string(message.Channel())).StoreValue()).
		AddField(bluge.NewKeywordField(indexFieldSender, string(message.Sender)).StoreValue()).
		AddField(bluge.NewKeywordField(indexFieldReceiver, string(message.Receiver)).StoreValue()).
		AddField(bluge.NewKeywordField(indexFieldSentAt, message.SentAt.UTC().Format(time.RFC3339Nano)).StoreValue()).
		AddField(bluge.NewTextField(indexFieldText, message.Text).StoreValue())
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", message.ID, err)
	}
	return nil
}

// Search returns the best matches for terms inside a single channel.
func (i *MessageIndex) Search(ctx context.Context, channel chat.ChannelID, terms string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(channel)).SetField(indexFieldChannel)).
		AddMust(bluge.NewMatchQuery(terms).SetField(indexFieldText))
	request := bluge.NewTopNSearch(limit, query)

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search %q in %s: %w", terms, channel, err)
	}

	var messages []chat.Message
	match, err := matches.Next()
	for err == nil && match != nil {
		message, visitErr := toMessage(match)
		if visitErr != nil {
			i.log.Warn("Skipping unreadable index document", "channel_id", channel, "error", visitErr)
		} else {
			messages = append(messages, message)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func toMessage(match *search.DocumentMatch) (chat.Message, error) {
	var message chat.Message
	var parseErr error
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		switch field {
		case indexFieldID:
			message.ID, parseErr = uuid.ParseBytes(value)
		case indexFieldSender:
			message.Sender = chat.UserID(value)
		case indexFieldReceiver:
			message.Receiver = chat.UserID(value)
		case indexFieldText:
			message.Text = string(value)
		case indexFieldSentAt:
			message.SentAt, parseErr = time.Parse(time.RFC3339Nano, string(value))
		}
		return parseErr == nil
	})
	if err != nil {
		return chat.Message{}, err
	}
	return message, parseErr
}
