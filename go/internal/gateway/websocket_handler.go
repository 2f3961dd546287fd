package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
)

// WebSocketHandler serves widget connections and the history endpoint.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	history           HistorySource
	historyLimit      int
}

// HistorySource is the read side of the bus.
type HistorySource interface {
	History(ctx context.Context, channel string, limit int) ([]bus.Message, error)
}

func NewWebSocketHandler(cm *ConnectionManager, history HistorySource, historyLimit int) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		history:           history,
		historyLimit:      historyLimit,
	}
}

// HandleConnection upgrades /ws?channels=a,b&user_id=u. Persisted history of
// each selected channel is replayed before live events.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	channels, err := parseChannels(splitList(r.URL.Query().Get("channels")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// TODO: take the user id from an authenticated session once widgets sign in.
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	var backlog []*StreamEvent
	if h.historyLimit > 0 {
		for ch := range channels {
			msgs, err := h.history.History(r.Context(), ch, h.historyLimit)
			if err != nil {
				log.Error().Err(err).Str("channel", ch).Msg("failed to load channel history")
				http.Error(w, "failed to load history", http.StatusServiceUnavailable)
				return
			}
			for _, msg := range msgs {
				backlog = append(backlog, toStreamEvent(msg, true))
			}
		}
		sortByTimestamp(backlog)
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, userID, channels, backlog); err != nil {
		// The upgrader has already replied to the client.
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to upgrade websocket connection")
		return
	}
}

// HandleHistory returns the persisted history of one channel as JSON.
func (h *WebSocketHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if _, err := parseChannels([]string{channel}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	msgs, err := h.history.History(r.Context(), channel, limit)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("failed to load channel history")
		http.Error(w, "failed to load history", http.StatusServiceUnavailable)
		return
	}

	out := make([]*StreamEvent, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toStreamEvent(msg, true))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.Stats())
}

// RegisterRoutes registers the gateway routes on mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("/history", h.HandleHistory)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sortByTimestamp(evs []*StreamEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].Timestamp.Before(evs[j].Timestamp)
	})
}
