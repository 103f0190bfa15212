package storage

import (
	"chat-relay/domain/chat"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of StoredMessage, see message.proto.
const (
	fieldID          protowire.Number = 1
	fieldSenderID    protowire.Number = 2
	fieldReceiverID  protowire.Number = 3
	fieldMessageText protowire.Number = 4
	fieldSentAt      protowire.Number = 5
	fieldChannel     protowire.Number = 6
)

// DecodeMessage decodes a record read straight from the message keyspace.
func DecodeMessage(record []byte) (chat.Message, error) {
	return unmarshalMessage(record)
}

func marshalMessage(msg chat.Message) []byte {
	var b []byte
	b = appendString(b, fieldID, msg.ID.String())
	b = appendString(b, fieldSenderID, string(msg.Sender))
	b = appendString(b, fieldReceiverID, string(msg.Receiver))
	b = appendString(b, fieldMessageText, msg.Text)
	b = protowire.AppendTag(b, fieldSentAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.SentAt.UnixNano()))
	b = appendString(b, fieldChannel, string(msg.Channel()))
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// unmarshalMessage decodes a record, skipping fields it does not know.
func unmarshalMessage(b []byte) (chat.Message, error) {
	var msg chat.Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return chat.Message{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldSentAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return chat.Message{}, protowire.ParseError(n)
			}
			msg.SentAt = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		case typ == protowire.BytesType && num <= fieldChannel:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return chat.Message{}, protowire.ParseError(n)
			}
			if err := setStringField(&msg, num, v); err != nil {
				return chat.Message{}, err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return chat.Message{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return msg, nil
}

func setStringField(msg *chat.Message, num protowire.Number, v string) error {
	switch num {
	case fieldID:
		id, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("invalid message id %q: %w", v, err)
		}
		msg.ID = id
	case fieldSenderID:
		msg.Sender = chat.UserID(v)
	case fieldReceiverID:
		msg.Receiver = chat.UserID(v)
	case fieldMessageText:
		msg.Text = v
	}
	// The channel is derived from sender and receiver, the stored copy is only for tooling.
	return nil
}
