// Package httpapi exposes the interview pipeline over HTTP: the streaming
// chat endpoint consumed by the study UI, a transcript read endpoint, and
// the network-map write hook that invalidates the per-user cache.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phlu-lernkoop/interviewd/internal/chat"
	"github.com/phlu-lernkoop/interviewd/internal/netmap"
	"github.com/phlu-lernkoop/interviewd/internal/store"
)

// Handler bundles the collaborators the HTTP surface needs.
type Handler struct {
	Orchestrator *chat.Orchestrator
	Transcripts  store.TranscriptStore
	Maps         *store.MapCache
	Logger       *slog.Logger

	// RequestTimeout is the hard ceiling per chat request, independent of
	// the interview-session budget.
	RequestTimeout time.Duration
}

// NewRouter wires the routes.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /api/chat", h.handleReadChat)
	mux.HandleFunc("POST /api/network-map", h.handleSaveMap)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	return mux
}

type chatRequest struct {
	ID       string      `json:"id"`
	Messages []chat.Turn `json:"messages"`
}

// event is one SSE payload. Deltas carry text; the finish event closes the
// turn; error signals a retryable failure to the UI.
type event struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RequestTimeout)
		defer cancel()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(ev event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// Only real, non-empty turns are accepted from the client; the
	// synthetic opener is the orchestrator's business.
	incoming := chat.VisibleHistory(req.Messages)

	outcome, err := h.Orchestrator.HandleTurn(ctx, req.ID, incoming, func(delta string) error {
		return writeEvent(event{Type: "delta", Text: delta})
	})
	if err != nil {
		// Headers are long gone; signal the failure in-band so the UI can
		// discard the partial turn and offer a retry.
		h.Logger.Error("chat turn failed", "user_id", req.ID, "error", err)
		_ = writeEvent(event{Type: "error"})
		return
	}

	_ = writeEvent(event{
		Type:     "finish",
		Finished: outcome.Finished || outcome.AlreadyFinished,
		Reason:   outcome.FinishReason,
	})
}

func (h *Handler) handleReadChat(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("id")
	if userID == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	turns, err := h.Transcripts.ReadChat(r.Context(), userID)
	if err != nil {
		h.Logger.Error("read chat failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": chat.VisibleHistory(turns)})
}

type saveMapRequest struct {
	ID     string          `json:"id"`
	People []netmap.Person `json:"people"`
}

func (h *Handler) handleSaveMap(w http.ResponseWriter, r *http.Request) {
	var req saveMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	if err := h.Maps.SaveMap(r.Context(), req.ID, req.People); err != nil {
		h.Logger.Error("save network map failed", "user_id", req.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": len(req.People)})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
