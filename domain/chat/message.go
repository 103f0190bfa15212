package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable record exchanged between two participants.
// It is created once, persisted once and never mutated.
type Message struct {
	ID       uuid.UUID
	Sender   UserID
	Receiver UserID
	Text     string
	SentAt   time.Time
}

// Channel returns the conversation the message belongs to.
func (m Message) Channel() ChannelID {
	return DeriveChannel(m.Sender, m.Receiver)
}

// Cursor points at a stored message. It doubles as the StoredId returned
// on append and as the "before" bound of history pagination.
type Cursor string

func (c Cursor) String() string { return string(c) }

// ConnectionID is the opaque handle of one live client session.
type ConnectionID string
