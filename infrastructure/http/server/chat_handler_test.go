package server

import (
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/storage"
	"chat-relay/runtime"
	"chat-relay/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type receivedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.Default()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	repository := storage.NewMessageRepository(db, log, nil, nil)

	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(log, registry, time.Second)
	service := services.NewChatService(log, repository, nil, registry, broadcaster, nil)

	chatHandler := NewChatHandler(log, service, ChatHandlerConfig{BufferSize: 8, PingInterval: time.Second})
	srv := httptest.NewServer(NewRouter(log, chatHandler, NewHistoryHandler(log, service), nil))
	t.Cleanup(func() {
		srv.Close()
		_ = repository.Close()
		_ = db.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{"event": event, "data": data}))
}

func next(t *testing.T, ws *websocket.Conn) receivedFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame receivedFrame
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestChatHandler_Conversation_Over_Websocket(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	three := dial(t, srv, "3")
	seven := dial(t, srv, "7")

	// Given 3 and 7 joined their room, ids sent as numbers like the browser client
	send(t, three, EventJoinRoom, map[string]any{"from": 3, "to": 7})
	joined := next(t, three)
	req.Equal(EventJoinedRoom, joined.Event)
	req.JSONEq(`{"channel":"3_7","peer":7}`, string(joined.Data))

	send(t, seven, EventJoinRoom, map[string]any{"from": "7", "to": "3"})
	req.Equal(EventJoinedRoom, next(t, seven).Event)

	// When 3 sends "hi"
	send(t, three, EventSendMessage, map[string]any{"from": 3, "to": 7, "text": "hi"})

	// Then both receive it
	for _, ws := range []*websocket.Conn{three, seven} {
		frame := next(t, ws)
		req.Equal(EventReceiveMessage, frame.Event)
		var msg messagePayload
		req.NoError(json.Unmarshal(frame.Data, &msg))
		req.Equal(chat.UserID("3"), msg.From)
		req.Equal(chat.UserID("7"), msg.To)
		req.Equal("hi", msg.Text)
		req.NotEmpty(msg.ID)
	}

	// And the history endpoint returns it
	resp, err := http.Get(srv.URL + "/api/messages/7/3")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	var history []messagePayload
	req.NoError(json.NewDecoder(resp.Body).Decode(&history))
	req.Len(history, 1)
	req.Equal("hi", history[0].Text)
}

func TestChatHandler_Rejections_Keep_The_Session_Alive(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	three := dial(t, srv, "3")

	// Given a malformed frame
	req.NoError(three.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame := next(t, three)
	req.Equal(EventError, frame.Event)
	var failure errorPayload
	req.NoError(json.Unmarshal(frame.Data, &failure))
	req.Equal("validation", failure.Code)

	// Given an unknown event
	send(t, three, "dance", map[string]any{})
	req.Equal(EventError, next(t, three).Event)

	// Given a send to a room not joined
	send(t, three, EventSendMessage, map[string]any{"from": "3", "to": "7", "text": "hi"})
	frame = next(t, three)
	req.NoError(json.Unmarshal(frame.Data, &failure))
	req.Equal(EventSendMessage, failure.Event)
	req.Contains(failure.Message, "channel not joined")

	// Given a join on behalf of someone else
	send(t, three, EventJoinRoom, map[string]any{"from": "4", "to": "7"})
	req.Equal(EventError, next(t, three).Event)

	// Then the session still works
	send(t, three, EventJoinRoom, map[string]any{"from": "3", "to": "7"})
	req.Equal(EventJoinedRoom, next(t, three).Event)
	send(t, three, EventLeaveRoom, map[string]any{"from": "3", "to": "7"})
	req.Equal(EventLeftRoom, next(t, three).Event)
}

func TestChatHandler_Requires_Identity(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	req.NoError(err)
	defer resp.Body.Close()

	var health HealthResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&health))
	req.Equal("UP", health.Status)
	req.False(health.Timestamp.IsZero())
}
