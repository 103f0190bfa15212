package server

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const nextCursorHeader = "X-Next-Cursor"

// HistoryHandler serves the read side of a conversation over plain HTTP.
type HistoryHandler struct {
	log     *slog.Logger
	service services.IChatService
}

func NewHistoryHandler(log *slog.Logger, service services.IChatService) *HistoryHandler {
	return &HistoryHandler{log: log, service: service}
}

// GetMessages answers GET /api/messages/{userA}/{userB}?limit=&before=
// with the page in ascending order; the cursor of the next older page,
// if any, is returned in the X-Next-Cursor header.
func (h *HistoryHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	cmd := chat.GetHistoryCommand{
		UserA: chat.UserID(vars["userA"]),
		UserB: chat.UserID(vars["userB"]),
		Limit: limit,
	}
	if before := r.URL.Query().Get("before"); before != "" {
		cmd.Before = lo.ToPtr(chat.Cursor(before))
	}

	messages, next, err := h.service.GetMessages(cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if next != nil {
		w.Header().Set(nextCursorHeader, next.String())
	}
	writeJSON(w, http.StatusOK, toMessagePayloads(messages))
}

// SearchMessages answers GET /api/messages/{userA}/{userB}/search?q=&limit=
func (h *HistoryHandler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	cmd := chat.SearchCommand{
		UserA: chat.UserID(vars["userA"]),
		UserB: chat.UserID(vars["userB"]),
		Terms: r.URL.Query().Get("q"),
		Limit: limit,
	}

	messages, err := h.service.SearchMessages(r.Context(), cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessagePayloads(messages))
}

func (h *HistoryHandler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch errors.Code(err) {
	case errors.CodeValidation:
		status = http.StatusBadRequest
	case errors.CodePersistence:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	if status != http.StatusBadRequest {
		h.log.Error("History request failed", "error", err)
	}
	writeJSON(w, status, errorPayload{Code: errors.Code(err), Message: err.Error()})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be an integer", errors.ErrValidation)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
