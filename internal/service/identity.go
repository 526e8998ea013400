package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/apperr"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

// IdentityRegistry resolves users and tracks their presence.
type IdentityRegistry struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	publisher Publisher
	now       func() time.Time
	logger    *logger.Logger
}

// NewIdentityRegistry creates an empty registry.
func NewIdentityRegistry(publisher Publisher, log *logger.Logger, opts ...Option) *IdentityRegistry {
	o := buildOptions(opts)
	return &IdentityRegistry{
		users:     make(map[string]*model.User),
		publisher: orNop(publisher),
		now:       o.now,
		logger:    orNopLogger(log),
	}
}

// Register adds a user or updates the profile of an existing one. Presence
// of an existing user is left alone; a new user without a valid status
// starts offline.
func (r *IdentityRegistry) Register(ctx context.Context, user model.User) (model.User, error) {
	user.ID = strings.TrimSpace(user.ID)
	user.Name = strings.TrimSpace(user.Name)
	if user.ID == "" {
		return model.User{}, apperr.InvalidArgument("user id is required")
	}
	if user.Name == "" {
		return model.User{}, apperr.InvalidArgument("display name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[user.ID]; ok {
		existing.Name = user.Name
		existing.Avatar = user.Avatar
		return copyUser(existing), nil
	}

	if !user.Status.Valid() {
		user.Status = model.PresenceOffline
	}
	user.Online = user.Status == model.PresenceOnline
	stored := copyUser(&user)
	r.users[user.ID] = &stored

	r.logger.Debug("user registered", zap.String("user_id", user.ID))
	return copyUser(&stored), nil
}

// GetUser returns the user with the given id.
func (r *IdentityRegistry) GetUser(ctx context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return model.User{}, apperr.UserNotFound(id)
	}
	return copyUser(u), nil
}

// ListUsers returns every user except exclude, ordered by display name.
func (r *IdentityRegistry) ListUsers(ctx context.Context, exclude string) []model.User {
	r.mu.RLock()
	out := make([]model.User, 0, len(r.users))
	for id, u := range r.users {
		if id == exclude {
			continue
		}
		out = append(out, copyUser(u))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetPresence updates a user's status. LastSeen is stamped only when the
// user transitions into offline from another status.
func (r *IdentityRegistry) SetPresence(ctx context.Context, id string, status model.Presence) (model.User, error) {
	if !status.Valid() {
		return model.User{}, apperr.InvalidArgument("unknown presence status %q", status)
	}

	r.mu.Lock()
	u, ok := r.users[id]
	if !ok {
		r.mu.Unlock()
		return model.User{}, apperr.UserNotFound(id)
	}

	previous := u.Status
	if status == model.PresenceOffline && previous != model.PresenceOffline {
		seen := r.now()
		u.LastSeen = &seen
	}
	u.Status = status
	u.Online = status == model.PresenceOnline
	result := copyUser(u)
	r.mu.Unlock()

	if previous != status {
		metrics.PresenceChangesTotal.WithLabelValues(string(status)).Inc()
		r.publisher.Publish(model.Event{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Type:      model.EventPresenceChanged,
			UserID:    id,
			Status:    status,
			CreatedAt: r.now(),
		})
		r.logger.Debug("presence changed",
			zap.String("user_id", id),
			zap.String("from", string(previous)),
			zap.String("to", string(status)),
		)
	}
	return result, nil
}

// participants resolves ids to display records. Unknown ids are kept with
// the id as their name.
func (r *IdentityRegistry) participants(ids []string) []model.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Participant, len(ids))
	for i, id := range ids {
		if u, ok := r.users[id]; ok {
			out[i] = model.Participant{ID: u.ID, Name: u.Name, Avatar: u.Avatar, Status: u.Status}
		} else {
			out[i] = model.Participant{ID: id, Name: id}
		}
	}
	return out
}

func (r *IdentityRegistry) displayName(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[id]; ok {
		return u.Name
	}
	return id
}

// Snapshot copies every user.
func (r *IdentityRegistry) Snapshot() []model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore replaces the registry content.
func (r *IdentityRegistry) Restore(users []model.User) error {
	next := make(map[string]*model.User, len(users))
	for i := range users {
		u := copyUser(&users[i])
		if u.ID == "" {
			return apperr.InvalidArgument("snapshot user without id")
		}
		if !u.Status.Valid() {
			u.Status = model.PresenceOffline
		}
		u.Online = u.Status == model.PresenceOnline
		next[u.ID] = &u
	}

	r.mu.Lock()
	r.users = next
	r.mu.Unlock()
	return nil
}

func copyUser(u *model.User) model.User {
	out := *u
	if u.LastSeen != nil {
		seen := *u.LastSeen
		out.LastSeen = &seen
	}
	return out
}
