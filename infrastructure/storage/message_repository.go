//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"bytes"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const (
	// MessageKeyPrefix starts every stored message key.
	MessageKeyPrefix = "msg:"

	DefaultLimitMessages = 50
	MaxLimitMessages     = 200

	sequenceKey       = "seq:msg"
	sequenceBandwidth = 1000
)

var cursorPattern = regexp.MustCompile(`^\d{19}:\d{20}$`)

type IMessageRepository interface {
	StoreMessage(message chat.Message) (chat.Cursor, error)
	GetMessages(channel chat.ChannelID, limit int, before *chat.Cursor) ([]chat.Message, *chat.Cursor, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages int
	maxMessages   int

	mu       sync.Mutex
	sequence *badger.Sequence
}

// NewMessageRepository wraps an opened badger DB. A nil limitMessages falls back
// to DefaultLimitMessages, a nil maxMessages to MaxLimitMessages.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages, maxMessages *int) *MessageRepository {
	repository := &MessageRepository{db: db, log: log, limitMessages: DefaultLimitMessages, maxMessages: MaxLimitMessages}
	if limitMessages != nil {
		repository.limitMessages = *limitMessages
	}
	if maxMessages != nil {
		repository.maxMessages = *maxMessages
	}
	return repository
}

// StoreMessage persists a message in BadgerDB and returns its cursor.
// The key is formatted as "msg:{len(channel)}:{channel}:{nanos_padded}:{sequence_padded}" to:
//  1. Keep one contiguous, unambiguous prefix per channel whatever the ids contain.
//  2. Sort chronologically using 19-digit zero padding (lexicographical order).
//  3. Break ties between messages of the same nanosecond by insertion order.
//
// The write is durable once the transaction commits (SyncWrites on the DB options).
func (m *MessageRepository) StoreMessage(message chat.Message) (chat.Cursor, error) {
	seq, err := m.nextSequence()
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	cursor := chat.Cursor(fmt.Sprintf("%019d:%020d", message.SentAt.UnixNano(), seq))
	key := append(channelPrefix(message.Channel()), cursor...)

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, marshalMessage(message))
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	return cursor, nil
}

// GetMessages returns at most limit messages of the channel older than before,
// in ascending order. The returned cursor points at the oldest message of the
// page and is nil once the beginning of the conversation is reached.
func (m *MessageRepository) GetMessages(channel chat.ChannelID, limit int, before *chat.Cursor) ([]chat.Message, *chat.Cursor, error) {
	if before != nil && !cursorPattern.MatchString(string(*before)) {
		return nil, nil, fmt.Errorf("%w: %q", errors.ErrInvalidCursor, *before)
	}
	limit = m.pageSize(limit)
	prefix := channelPrefix(channel)

	var messages []chat.Message
	var oldest chat.Cursor
	hasMore := false

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch before {
		case nil:
			// Past the newest possible key of the channel, then walk backwards
			seekKey = append(slices.Clone(prefix), 0xff)
		default:
			seekKey = append(slices.Clone(prefix), *before...)
		}

		it.Seek(seekKey)
		if before != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			item := it.Item()
			oldest = chat.Cursor(item.Key()[len(prefix):])
			err := item.Value(func(value []byte) error {
				message, err := unmarshalMessage(value)
				if err != nil {
					return fmt.Errorf("corrupted message %s: %w", item.Key(), err)
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		hasMore = it.ValidForPrefix(prefix)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	if hasMore {
		m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit), "channel_id", channel)
	}

	slices.Reverse(messages)
	if !hasMore {
		return messages, nil, nil
	}
	return messages, &oldest, nil
}

// Close releases the leased sequence range. The DB itself belongs to the caller.
func (m *MessageRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sequence == nil {
		return nil
	}
	err := m.sequence.Release()
	m.sequence = nil
	return err
}

// nextSequence leases the sequence lazily so that read-only DBs can still serve history.
func (m *MessageRepository) nextSequence() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sequence == nil {
		seq, err := m.db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
		if err != nil {
			return 0, err
		}
		m.sequence = seq
	}
	return m.sequence.Next()
}

func (m *MessageRepository) pageSize(limit int) int {
	if limit <= 0 {
		limit = m.limitMessages
	}
	return min(limit, m.maxMessages)
}

func channelPrefix(channel chat.ChannelID) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", MessageKeyPrefix, len(channel), channel))
}
