package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/events"
	"github.com/capitalize-ai/study-collab/internal/middleware"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

// DefaultHeartbeat is the interval between keep-alive events.
const DefaultHeartbeat = 30 * time.Second

// StreamHandler serves the caller's live event feed over SSE.
type StreamHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
	shutdown  <-chan struct{}
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler. Open streams end when
// shutdown is closed, which lets the server drain before the bus closes.
// A nil shutdown channel never fires.
func NewStreamHandler(bus *events.Bus, heartbeat time.Duration, shutdown <-chan struct{}, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{bus: bus, heartbeat: heartbeat, shutdown: shutdown, logger: log}
}

// Stream handles GET /api/v1/events
// Only events whose recipients include the caller are delivered; presence
// changes reach everyone.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	log := middleware.RequestLogger(ctx, h.logger)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := h.bus.Connect("sse", userID)
	defer h.bus.Disconnect(sub)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	if err := sendSSEEvent(w, flusher, "", "connected", map[string]string{"user_id": userID}); err != nil {
		return
	}
	log.Info("SSE client connected")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case <-h.shutdown:
			sendSSEEvent(w, flusher, "", "error", &model.ErrorEvent{
				Code:    "shutdown",
				Message: "server is shutting down",
			})
			log.Info("SSE stream closed for shutdown")
			return

		case evt, ok := <-sub.C:
			if !ok {
				sendSSEEvent(w, flusher, "", "error", &model.ErrorEvent{
					Code:    "shutdown",
					Message: "event stream closed",
				})
				return
			}
			if err := sendSSEEvent(w, flusher, evt.ID, string(evt.Type), evt); err != nil {
				log.Warn("failed to write SSE event", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "", "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, id, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
