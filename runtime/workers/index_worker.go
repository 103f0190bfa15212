package workers

import (
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/storage"
	"context"
	"log/slog"
)

// IndexWorker feeds persisted messages into the full-text index.
// Indexing failures are logged and skipped: the store stays the source of truth.
type IndexWorker struct {
	log      *slog.Logger
	index    storage.IMessageIndex
	messages <-chan chat.Message
}

func NewIndexWorker(log *slog.Logger, index storage.IMessageIndex, messages <-chan chat.Message) *IndexWorker {
	return &IndexWorker{log: log, index: index, messages: messages}
}

func (w *IndexWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping message indexing")
			return nil
		case msg, ok := <-w.messages:
			if !ok {
				return nil
			}
			if err := w.index.Index(msg); err != nil {
				w.log.Warn("Message not indexed", "id", msg.ID, "channel", msg.Channel(), "error", err)
			}
		}
	}
}
