package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "UP", Timestamp: time.Now().UTC()})
}

// NewRouter mounts every relay endpoint. metrics may be nil.
func NewRouter(log *slog.Logger, chatHandler *ChatHandler, historyHandler *HistoryHandler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", HandleHealth).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	r.Handle("/ws", chatHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(withLogging(log))
	api.HandleFunc("/messages/{userA}/{userB}", historyHandler.GetMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/{userA}/{userB}/search", historyHandler.SearchMessages).Methods(http.MethodGet)
	return r
}

// withLogging logs every API request. The websocket route is left out:
// its lifetime is the connection's, not a request's.
func withLogging(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}
