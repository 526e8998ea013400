package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/middleware"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/internal/ranking"
	"github.com/capitalize-ai/study-collab/internal/service"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(core *service.Core, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: core.Conversations,
		logger:  log,
	}
}

// CreateDirect handles POST /api/v1/conversations/direct. Repeated calls
// return the existing conversation.
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateDirectConversationRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.CreateDirect(ctx, middleware.GetUserID(ctx), req.TargetUserID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// CreateGroup handles POST /api/v1/conversations/group
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateGroupConversationRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateText("title", req.Title); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.CreateGroup(ctx, middleware.GetUserID(ctx), req.Title, req.ParticipantIDs, req.GroupID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	middleware.RequestLogger(ctx, h.logger).Info("group conversation created",
		zap.String("conversation_id", conv.ID),
		zap.Int("participants", len(conv.Participants)),
	)
	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations?q=&kind=
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	kind, err := ranking.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	convs := h.service.List(ctx, userID)
	convs = ranking.Rank(ranking.Filter(convs, r.URL.Query().Get("q"), kind))

	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: lo.Map(convs, func(c model.Conversation, _ int) model.ConversationSummary {
			return c.Summary()
		}),
		Total: len(convs),
	})
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.Get(ctx, conversationID, middleware.GetUserID(ctx))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Pin handles PUT /api/v1/conversations/{id}/pin
func (h *ConversationHandler) Pin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var req model.PinConversationRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.SetPinned(ctx, conversationID, middleware.GetUserID(ctx), req.Pinned)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv.Summary())
}

// Rename handles PUT /api/v1/conversations/{id}/title
func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var req model.RenameConversationRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateText("title", req.Title); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.Rename(ctx, conversationID, middleware.GetUserID(ctx), req.Title)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv.Summary())
}

// ByGroup handles GET /api/v1/groups/{groupId}/conversation
func (h *ConversationHandler) ByGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "groupId")

	conv, err := h.service.GetByGroup(ctx, middleware.GetUserID(ctx), groupID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
