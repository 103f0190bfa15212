package event

import (
	"chat-relay/domain/chat"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is anything pushed to a connection's outbound stream.
type DomainEvent interface {
	ChannelID() chat.ChannelID
}

// MessageReceived is delivered to every member of the channel of a sent message.
type MessageReceived struct {
	ID      uuid.UUID
	Channel chat.ChannelID
	From    chat.UserID
	To      chat.UserID
	Text    string
	At      time.Time
}

func (m MessageReceived) ChannelID() chat.ChannelID { return m.Channel }

func NewMessageReceived(msg chat.Message) MessageReceived {
	return MessageReceived{
		ID:      msg.ID,
		Channel: msg.Channel(),
		From:    msg.Sender,
		To:      msg.Receiver,
		Text:    msg.Text,
		At:      msg.SentAt,
	}
}

// ChannelJoined acknowledges a join to the requesting connection only.
type ChannelJoined struct {
	Channel chat.ChannelID
	Peer    chat.UserID
}

func (c ChannelJoined) ChannelID() chat.ChannelID { return c.Channel }

type ChannelLeft struct {
	Channel chat.ChannelID
	Peer    chat.UserID
}

func (c ChannelLeft) ChannelID() chat.ChannelID { return c.Channel }

// RequestFailed reports a rejected or partially failed request to its sender.
type RequestFailed struct {
	Channel chat.ChannelID
	Request string
	Code    string
	Reason  string
}

func (r RequestFailed) ChannelID() chat.ChannelID { return r.Channel }
