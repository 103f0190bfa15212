package server

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"encoding/json"
	"time"

	"github.com/samber/lo"
)

// Inbound events.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
)

// Outbound events.
const (
	EventReceiveMessage = "receive_message"
	EventJoinedRoom     = "joined_room"
	EventLeftRoom       = "left_room"
	EventError          = "error"
)

// Every websocket frame is a JSON envelope {"event": "...", "data": {...}}.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type messagePayload struct {
	ID   string      `json:"id"`
	From chat.UserID `json:"from"`
	To   chat.UserID `json:"to"`
	Text string      `json:"text"`
	Time time.Time   `json:"time"`
}

type channelPayload struct {
	Channel chat.ChannelID `json:"channel"`
	Peer    chat.UserID    `json:"peer"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

func toFrame(e event.DomainEvent) (outboundFrame, bool) {
	switch evt := e.(type) {
	case event.MessageReceived:
		return outboundFrame{Event: EventReceiveMessage, Data: messagePayload{
			ID:   evt.ID.String(),
			From: evt.From,
			To:   evt.To,
			Text: evt.Text,
			Time: evt.At,
		}}, true
	case event.ChannelJoined:
		return outboundFrame{Event: EventJoinedRoom, Data: channelPayload{Channel: evt.Channel, Peer: evt.Peer}}, true
	case event.ChannelLeft:
		return outboundFrame{Event: EventLeftRoom, Data: channelPayload{Channel: evt.Channel, Peer: evt.Peer}}, true
	case event.RequestFailed:
		return outboundFrame{Event: EventError, Data: errorPayload{Code: evt.Code, Message: evt.Reason, Event: evt.Request}}, true
	}
	return outboundFrame{}, false
}

func toMessagePayloads(messages []chat.Message) []messagePayload {
	return lo.Map(messages, func(m chat.Message, _ int) messagePayload {
		return messagePayload{ID: m.ID.String(), From: m.Sender, To: m.Receiver, Text: m.Text, Time: m.SentAt}
	})
}
