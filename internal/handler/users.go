package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/study-collab/internal/middleware"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/internal/service"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

// UserHandler handles the user directory and presence endpoints.
type UserHandler struct {
	identity      *service.IdentityRegistry
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(core *service.Core, log *logger.Logger) *UserHandler {
	return &UserHandler{
		identity:      core.Identity,
		conversations: core.Conversations,
		logger:        log,
	}
}

// UpsertMe handles PUT /api/v1/users/me
func (h *UserHandler) UpsertMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.UpsertUserRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateText("name", req.Name); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	user, err := h.identity.Register(ctx, model.User{ID: userID, Name: req.Name, Avatar: req.Avatar})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users := h.identity.ListUsers(ctx, middleware.GetUserID(ctx))
	writeJSON(w, http.StatusOK, model.ListUsersResponse{Users: users})
}

// Get handles GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateUserID(id); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	user, err := h.identity.GetUser(r.Context(), id)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SetPresence handles PUT /api/v1/users/me/presence
func (h *UserHandler) SetPresence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SetPresenceRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	user, err := h.identity.SetPresence(ctx, middleware.GetUserID(ctx), req.Status)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Direct handles GET /api/v1/users/{id}/direct
func (h *UserHandler) Direct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	other := chi.URLParam(r, "id")
	if err := middleware.ValidateUserID(other); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.conversations.GetDirect(ctx, middleware.GetUserID(ctx), other)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
