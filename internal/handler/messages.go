package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/study-collab/internal/apperr"
	"github.com/capitalize-ai/study-collab/internal/grouping"
	"github.com/capitalize-ai/study-collab/internal/middleware"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/internal/service"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

// Replayer reads persisted events of a conversation back from the stream.
type Replayer interface {
	Replay(ctx context.Context, conversationID string, afterSequence uint64, limit int) ([]model.Event, uint64, error)
}

// HistoryResponse is the response for the event history endpoint.
type HistoryResponse struct {
	Events       []model.Event `json:"events"`
	LastSequence uint64        `json:"last_sequence"`
}

// MessageHandler handles message endpoints.
type MessageHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
	reads         *service.ReadTracker
	replayer      Replayer
	defaultGap    time.Duration
	logger        *logger.Logger
}

// NewMessageHandler creates a new message handler. replayer may be nil when
// no durable stream is configured.
func NewMessageHandler(core *service.Core, replayer Replayer, defaultGap time.Duration, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		conversations: core.Conversations,
		messages:      core.Messages,
		reads:         core.Reads,
		replayer:      replayer,
		defaultGap:    defaultGap,
		logger:        log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
// Supports ?after=<RFC3339Nano>&limit=N&grouped=true&gap=<duration>.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	q := r.URL.Query()
	var after time.Time
	if s := q.Get("after"); s != "" {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeAppError(w, r, h.logger, apperr.InvalidArgument("after must be an RFC 3339 timestamp"))
			return
		}
		after = parsed
	}

	limit := service.DefaultPageSize
	if s := q.Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	msgs, hasMore, err := h.messages.ListMessages(ctx, conversationID, middleware.GetUserID(ctx), after, limit)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	resp := model.ListMessagesResponse{HasMore: hasMore}
	if grouped, _ := strconv.ParseBool(q.Get("grouped")); grouped {
		gap := h.defaultGap
		if s := q.Get("gap"); s != "" {
			parsed, err := time.ParseDuration(s)
			if err != nil {
				writeAppError(w, r, h.logger, apperr.InvalidArgument("gap must be a duration such as 300s"))
				return
			}
			if parsed <= 0 {
				writeAppError(w, r, h.logger, apperr.InvalidArgument("gap must be a positive duration"))
				return
			}
			gap = parsed
		}
		resp.Groups = grouping.GroupForDisplay(msgs, gap)
	} else {
		resp.Messages = msgs
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var req model.SendMessageRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateText("content", req.Content); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	attachments := make([]model.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		att, err := model.NewAttachment(a.Kind, a.Name, a.URL)
		if err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
		attachments = append(attachments, att)
	}

	msg, err := h.messages.Send(ctx, conversationID, middleware.GetUserID(ctx), req.Content, attachments)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.SendMessageResponse{Message: &msg})
}

// MarkRead handles POST /api/v1/conversations/{id}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	userID := middleware.GetUserID(ctx)
	if _, err := h.reads.MarkRead(ctx, conversationID, userID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	unread, err := h.reads.UnreadCount(ctx, conversationID, userID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MarkReadResponse{ConversationID: conversationID, UnreadCount: unread})
}

// History handles GET /api/v1/conversations/{id}/history
// Supports ?after_sequence=N&limit=N for paging through the durable stream.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if h.replayer == nil {
		writeError(w, http.StatusServiceUnavailable, "event history is not enabled")
		return
	}
	if _, err := h.conversations.Get(ctx, conversationID, middleware.GetUserID(ctx)); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var afterSequence uint64
	if s := r.URL.Query().Get("after_sequence"); s != "" {
		if parsed, err := strconv.ParseUint(s, 10, 64); err == nil {
			afterSequence = parsed
		}
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	evts, last, err := h.replayer.Replay(ctx, conversationID, afterSequence, limit)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if evts == nil {
		evts = []model.Event{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Events: evts, LastSequence: last})
}
