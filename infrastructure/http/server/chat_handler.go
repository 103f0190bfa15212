package server

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type ChatHandlerConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

// ChatHandler is the websocket front door. Each accepted connection gets
// a Session fed by a read loop, and a single writer goroutine draining
// the connection's outbound queue.
type ChatHandler struct {
	log      *slog.Logger
	service  services.IChatService
	upgrader websocket.Upgrader
	config   ChatHandlerConfig
}

func NewChatHandler(log *slog.Logger, service services.IChatService, config ChatHandlerConfig) *ChatHandler {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = 64 * 1024
	}
	return &ChatHandler{
		log:     log,
		service: service,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := chat.UserID(r.URL.Query().Get("user"))
	if err := chat.ValidateUserID(identity); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade error", "error", err)
		return
	}

	conn := sink.NewConnectionSink(h.config.BufferSize)
	session := services.NewSession(h.log, conn, h.service)
	if err := session.Handshake(identity); err != nil {
		h.log.Error("Handshake refused", "user", identity, "error", err)
		_ = ws.Close()
		return
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writePump(ws, conn)
	}()

	h.readLoop(r.Context(), ws, session, conn)
	if err := session.Close(); err != nil {
		h.log.Debug("Closing session", "user", identity, "error", err)
	}
	<-written
}

func (h *ChatHandler) readLoop(ctx context.Context, ws *websocket.Conn, session *services.Session, conn *sink.ConnectionSink) {
	ws.SetReadLimit(h.config.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(2 * h.config.PingInterval))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * h.config.PingInterval))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Read error", "user", session.Identity(), "error", err)
			}
			return
		}
		if err := h.dispatch(ctx, session, payload); err != nil {
			if errors.Is(err, errors.ErrSessionClosed) {
				return
			}
		}
	}
}

// dispatch handles one inbound frame. Every failure is reported back to
// the client as an error event; only a closed session ends the loop.
func (h *ChatHandler) dispatch(ctx context.Context, session *services.Session, payload []byte) error {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return h.fail(ctx, session, "", "", fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err))
	}

	// Bounds the acknowledgements queued on this connection.
	ctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()

	switch frame.Event {
	case EventJoinRoom:
		var cmd chat.JoinCommand
		if err := decodeData(frame.Data, &cmd); err != nil {
			return h.fail(ctx, session, frame.Event, "", err)
		}
		if _, err := session.Join(ctx, cmd); err != nil {
			return h.fail(ctx, session, frame.Event, channelOf(cmd), err)
		}
	case EventLeaveRoom:
		var cmd chat.LeaveCommand
		if err := decodeData(frame.Data, &cmd); err != nil {
			return h.fail(ctx, session, frame.Event, "", err)
		}
		if _, err := session.Leave(ctx, cmd); err != nil {
			return h.fail(ctx, session, frame.Event, channelOf(cmd), err)
		}
	case EventSendMessage:
		var cmd chat.SendMessageCommand
		if err := decodeData(frame.Data, &cmd); err != nil {
			return h.fail(ctx, session, frame.Event, "", err)
		}
		if _, err := session.Send(ctx, cmd); err != nil {
			return h.fail(ctx, session, frame.Event, channelOf(cmd), err)
		}
	default:
		return h.fail(ctx, session, frame.Event, "", fmt.Errorf("%w: %q", errors.ErrUnknownEvent, frame.Event))
	}
	return nil
}

func (h *ChatHandler) fail(ctx context.Context, session *services.Session, request string, channelID chat.ChannelID, err error) error {
	code := errors.Code(err)
	if code == errors.CodeClosed {
		return err
	}
	h.log.Debug("Request rejected", "user", session.Identity(), "event", request, "code", code, "error", err)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.WriteTimeout)
	defer cancel()
	failure := event.RequestFailed{Channel: channelID, Request: request, Code: code, Reason: err.Error()}
	if sendErr := session.Reply(sendCtx, failure); sendErr != nil {
		h.log.Warn("Error reply not delivered", "user", session.Identity(), "error", sendErr)
	}
	return err
}

func (h *ChatHandler) writePump(ws *websocket.Conn, conn *sink.ConnectionSink) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteTimeout))
			return
		case evt := <-conn.Events():
			frame, ok := toFrame(evt)
			if !ok {
				h.log.Debug("Event has no wire representation", "type", fmt.Sprintf("%T", evt))
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := ws.WriteJSON(frame); err != nil {
				h.log.Warn("Write error", "connection", conn.ID(), "error", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func decodeData(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", errors.ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	return nil
}

// channelOf derives the channel only when both ids are usable.
func channelOf(cmd chat.Command) chat.ChannelID {
	if chat.Validate(cmd) != nil {
		return ""
	}
	return cmd.ChannelID()
}
