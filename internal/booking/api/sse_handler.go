package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"travel-booking/internal/auth"
	"travel-booking/internal/logger"
	"travel-booking/internal/models"
	"travel-booking/internal/sse"
	"travel-booking/internal/utils"
)

// SSEHandler streams live marketplace events: catalog changes for every
// viewer, booking changes for the owning agent.
type SSEHandler struct {
	Logger  *logger.Logger
	Emitter *sse.MarketEventEmitter
}

func NewSSEHandler(log *logger.Logger, emitter *sse.MarketEventEmitter) *SSEHandler {
	return &SSEHandler{
		Logger:  log,
		Emitter: emitter,
	}
}

// HandlePackageStream handles GET /api/stream/packages. Every
// authenticated user may watch the catalog; clients filter by their
// city of interest.
func (h *SSEHandler) HandlePackageStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.Emitter.SubscribeToCatalog(ctx)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	h.Logger.Info("SSE", "Client connected to package stream")

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}

			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize package event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", "Client disconnected from package stream")
			return
		}
	}
}

// HandleAgentStream handles GET /api/stream/agent (agent only): booking
// events for the agent's own packages.
func (h *SSEHandler) HandleAgentStream(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity.Role != models.RoleAgent {
		utils.WriteError(w, http.StatusForbidden, "access denied")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.Emitter.SubscribeToAgent(ctx, identity.UserID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"agentID\":\"%s\"}\n\n", identity.UserID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Agent %s connected to booking stream", identity.UserID))

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}

			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize booking event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Agent %s disconnected from booking stream", identity.UserID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
