package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/apperr"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
	"github.com/capitalize-ai/study-collab/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/capitalize-ai/study-collab/internal/service")

// conversation is the mutable state behind a model.Conversation. Fields
// other than id, kind, createdAt, createdBy and participants are guarded by mu.
type conversation struct {
	mu sync.RWMutex

	id           string
	kind         model.ConversationType
	createdAt    time.Time
	createdBy    string
	participants []string

	title     string
	updatedAt time.Time
	messages  []model.Message
	unread    map[string]int
	pinned    bool
	groupID   string
}

func (c *conversation) isParticipant(userID string) bool {
	return lo.Contains(c.participants, userID)
}

// directKey identifies the unordered pair of a direct conversation.
type directKey struct {
	lo, hi string
}

func newDirectKey(a, b string) directKey {
	if a > b {
		a, b = b, a
	}
	return directKey{lo: a, hi: b}
}

// ConversationService owns the set of conversations.
type ConversationService struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	direct        map[directKey]string
	byUser        map[string][]string
	byGroup       map[string][]string

	identity  *IdentityRegistry
	publisher Publisher
	now       func() time.Time
	logger    *logger.Logger
}

// NewConversationService creates an empty conversation store.
func NewConversationService(identity *IdentityRegistry, publisher Publisher, log *logger.Logger, opts ...Option) *ConversationService {
	o := buildOptions(opts)
	return &ConversationService{
		conversations: make(map[string]*conversation),
		direct:        make(map[directKey]string),
		byUser:        make(map[string][]string),
		byGroup:       make(map[string][]string),
		identity:      identity,
		publisher:     orNop(publisher),
		now:           o.now,
		logger:        orNopLogger(log),
	}
}

// CreateDirect returns the direct conversation between requester and
// target, creating it on first use. Repeated calls in either direction
// return the same conversation.
func (s *ConversationService) CreateDirect(ctx context.Context, requesterID, targetUserID string) (model.Conversation, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.CreateDirect")
	defer span.End()

	if requesterID == "" || targetUserID == "" {
		return model.Conversation{}, apperr.InvalidArgument("both participants are required")
	}
	if requesterID == targetUserID {
		return model.Conversation{}, apperr.InvalidArgument("a direct conversation needs two different users")
	}
	if _, err := s.identity.GetUser(ctx, requesterID); err != nil {
		return model.Conversation{}, err
	}
	if _, err := s.identity.GetUser(ctx, targetUserID); err != nil {
		return model.Conversation{}, err
	}

	key := newDirectKey(requesterID, targetUserID)

	s.mu.Lock()
	if id, ok := s.direct[key]; ok {
		existing := s.conversations[id]
		s.mu.Unlock()
		span.SetAttributes(attribute.Bool("existing", true))
		return s.view(existing, requesterID), nil
	}

	now := s.now()
	conv := &conversation{
		id:           uuid.Must(uuid.NewV7()).String(),
		kind:         model.ConversationDirect,
		createdAt:    now,
		updatedAt:    now,
		createdBy:    requesterID,
		participants: []string{requesterID, targetUserID},
		unread:       map[string]int{requesterID: 0, targetUserID: 0},
	}
	s.insertLocked(conv)
	s.direct[key] = conv.id
	s.mu.Unlock()

	s.created(conv)
	span.SetAttributes(attribute.String("conversation_id", conv.id))
	return s.view(conv, requesterID), nil
}

// CreateGroup creates a group conversation. The requester is always a
// member; at least two distinct members and a non-blank title are required.
func (s *ConversationService) CreateGroup(ctx context.Context, requesterID, title string, participantIDs []string, groupID string) (model.Conversation, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.CreateGroup")
	defer span.End()

	title = strings.TrimSpace(title)
	if title == "" {
		return model.Conversation{}, apperr.InvalidArgument("group title is required")
	}
	if requesterID == "" {
		return model.Conversation{}, apperr.InvalidArgument("requester is required")
	}

	members := []string{requesterID}
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return model.Conversation{}, apperr.InvalidArgument("participant id must not be empty")
		}
		if !lo.Contains(members, id) {
			members = append(members, id)
		}
	}
	if len(members) < 2 {
		return model.Conversation{}, apperr.InvalidArgument("a group needs at least 2 distinct members, got %d", len(members))
	}
	for _, id := range members {
		if _, err := s.identity.GetUser(ctx, id); err != nil {
			return model.Conversation{}, err
		}
	}

	now := s.now()
	conv := &conversation{
		id:           uuid.Must(uuid.NewV7()).String(),
		kind:         model.ConversationGroup,
		title:        title,
		createdAt:    now,
		updatedAt:    now,
		createdBy:    requesterID,
		participants: members,
		unread:       make(map[string]int, len(members)),
		groupID:      strings.TrimSpace(groupID),
	}
	for _, id := range members {
		conv.unread[id] = 0
	}

	s.mu.Lock()
	s.insertLocked(conv)
	s.mu.Unlock()

	s.created(conv)
	span.SetAttributes(attribute.String("conversation_id", conv.id), attribute.Int("members", len(members)))
	return s.view(conv, requesterID), nil
}

// Get returns the conversation as seen by viewerID. An empty viewer gets a
// neutral view: no unread count, and direct conversations keep their stored
// title instead of the other participant's name.
func (s *ConversationService) Get(ctx context.Context, conversationID, viewerID string) (model.Conversation, error) {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if viewerID != "" && !conv.isParticipant(viewerID) {
		return model.Conversation{}, apperr.NotAParticipant(viewerID, conversationID)
	}
	return s.view(conv, viewerID), nil
}

// List returns every conversation userID participates in, in creation order.
func (s *ConversationService) List(ctx context.Context, userID string) []model.Conversation {
	s.mu.RLock()
	ids := s.byUser[userID]
	convs := make([]*conversation, 0, len(ids))
	for _, id := range ids {
		convs = append(convs, s.conversations[id])
	}
	s.mu.RUnlock()

	out := make([]model.Conversation, 0, len(convs))
	for _, conv := range convs {
		out = append(out, s.view(conv, userID))
	}
	return out
}

// GetDirect returns the existing direct conversation between the two users.
func (s *ConversationService) GetDirect(ctx context.Context, requesterID, otherUserID string) (model.Conversation, error) {
	s.mu.RLock()
	id, ok := s.direct[newDirectKey(requesterID, otherUserID)]
	var conv *conversation
	if ok {
		conv = s.conversations[id]
	}
	s.mu.RUnlock()

	if conv == nil {
		return model.Conversation{}, apperr.New(apperr.KindConversationNotFound, "no direct conversation between %s and %s", requesterID, otherUserID)
	}
	return s.view(conv, requesterID), nil
}

// GetByGroup returns the first group conversation bound to groupID that
// requester belongs to.
func (s *ConversationService) GetByGroup(ctx context.Context, requesterID, groupID string) (model.Conversation, error) {
	s.mu.RLock()
	var found *conversation
	for _, id := range s.byGroup[groupID] {
		if conv := s.conversations[id]; conv.isParticipant(requesterID) {
			found = conv
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return model.Conversation{}, apperr.New(apperr.KindConversationNotFound, "no conversation for study group %s", groupID)
	}
	return s.view(found, requesterID), nil
}

// SetPinned flags or unflags a conversation as pinned.
func (s *ConversationService) SetPinned(ctx context.Context, conversationID, userID string, pinned bool) (model.Conversation, error) {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !conv.isParticipant(userID) {
		return model.Conversation{}, apperr.NotAParticipant(userID, conversationID)
	}

	conv.mu.Lock()
	conv.pinned = pinned
	conv.mu.Unlock()

	return s.view(conv, userID), nil
}

// Rename changes the title of a group conversation.
func (s *ConversationService) Rename(ctx context.Context, conversationID, userID, title string) (model.Conversation, error) {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !conv.isParticipant(userID) {
		return model.Conversation{}, apperr.NotAParticipant(userID, conversationID)
	}
	if conv.kind != model.ConversationGroup {
		return model.Conversation{}, apperr.InvalidArgument("only group conversations can be renamed")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Conversation{}, apperr.InvalidArgument("group title is required")
	}

	conv.mu.Lock()
	conv.title = title
	if now := s.now(); now.After(conv.updatedAt) {
		conv.updatedAt = now
	}
	conv.mu.Unlock()

	return s.view(conv, userID), nil
}

// Snapshot copies every conversation, each under its own lock.
func (s *ConversationService) Snapshot() []model.ConversationRecord {
	s.mu.RLock()
	convs := make([]*conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	s.mu.RUnlock()

	out := make([]model.ConversationRecord, 0, len(convs))
	for _, conv := range convs {
		conv.mu.RLock()
		out = append(out, model.ConversationRecord{
			ID:           conv.id,
			Type:         conv.kind,
			Title:        conv.title,
			CreatedAt:    conv.createdAt,
			UpdatedAt:    conv.updatedAt,
			CreatedBy:    conv.createdBy,
			Participants: append([]string(nil), conv.participants...),
			Messages:     cloneMessages(conv.messages),
			Pinned:       conv.pinned,
			GroupID:      conv.groupID,
		})
		conv.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore replaces the store content. Unread counts are recomputed from the
// read-by sets of the restored messages.
func (s *ConversationService) Restore(records []model.ConversationRecord) error {
	conversations := make(map[string]*conversation, len(records))
	direct := make(map[directKey]string)
	byUser := make(map[string][]string)
	byGroup := make(map[string][]string)

	sorted := append([]model.ConversationRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	for _, rec := range sorted {
		if err := validateRecord(rec); err != nil {
			return err
		}
		conv := &conversation{
			id:           rec.ID,
			kind:         rec.Type,
			title:        rec.Title,
			createdAt:    rec.CreatedAt,
			updatedAt:    rec.UpdatedAt,
			createdBy:    rec.CreatedBy,
			participants: append([]string(nil), rec.Participants...),
			messages:     cloneMessages(rec.Messages),
			pinned:       rec.Pinned,
			groupID:      rec.GroupID,
		}
		conv.unread = recountUnread(conv.participants, conv.messages)

		if conv.kind == model.ConversationDirect {
			key := newDirectKey(conv.participants[0], conv.participants[1])
			if _, dup := direct[key]; dup {
				return fmt.Errorf("snapshot holds two direct conversations for %s/%s", key.lo, key.hi)
			}
			direct[key] = conv.id
		}
		conversations[conv.id] = conv
		for _, p := range conv.participants {
			byUser[p] = append(byUser[p], conv.id)
		}
		if conv.groupID != "" {
			byGroup[conv.groupID] = append(byGroup[conv.groupID], conv.id)
		}
	}

	s.mu.Lock()
	s.conversations = conversations
	s.direct = direct
	s.byUser = byUser
	s.byGroup = byGroup
	s.mu.Unlock()
	return nil
}

func validateRecord(rec model.ConversationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("snapshot conversation without id")
	}
	if len(lo.Uniq(rec.Participants)) != len(rec.Participants) {
		return fmt.Errorf("conversation %s: duplicate participants", rec.ID)
	}
	switch rec.Type {
	case model.ConversationDirect:
		if len(rec.Participants) != 2 {
			return fmt.Errorf("conversation %s: direct needs exactly 2 participants, got %d", rec.ID, len(rec.Participants))
		}
	case model.ConversationGroup:
		if len(rec.Participants) < 2 {
			return fmt.Errorf("conversation %s: group needs at least 2 participants, got %d", rec.ID, len(rec.Participants))
		}
	default:
		return fmt.Errorf("conversation %s: unknown type %q", rec.ID, rec.Type)
	}
	for i := 1; i < len(rec.Messages); i++ {
		if rec.Messages[i].Timestamp.Before(rec.Messages[i-1].Timestamp) {
			return fmt.Errorf("conversation %s: messages out of order at %d", rec.ID, i)
		}
	}
	return nil
}

// lookup returns the live conversation state.
func (s *ConversationService) lookup(conversationID string) (*conversation, error) {
	s.mu.RLock()
	conv, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.ConversationNotFound(conversationID)
	}
	return conv, nil
}

func (s *ConversationService) insertLocked(conv *conversation) {
	s.conversations[conv.id] = conv
	for _, p := range conv.participants {
		s.byUser[p] = append(s.byUser[p], conv.id)
	}
	if conv.groupID != "" {
		s.byGroup[conv.groupID] = append(s.byGroup[conv.groupID], conv.id)
	}
}

func (s *ConversationService) created(conv *conversation) {
	metrics.ConversationsTotal.WithLabelValues(string(conv.kind)).Inc()
	s.publisher.Publish(model.Event{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Type:           model.EventConversationCreated,
		ConversationID: conv.id,
		UserID:         conv.createdBy,
		Recipients:     append([]string(nil), conv.participants...),
		CreatedAt:      conv.createdAt,
	})
	s.logger.ForConversation(conv.id).Info("conversation created",
		zap.String("type", string(conv.kind)),
		zap.String("created_by", conv.createdBy),
		zap.Int("participants", len(conv.participants)),
	)
}

// view copies the conversation state as seen by viewerID. Participant
// records are resolved after the conversation lock is released.
func (s *ConversationService) view(conv *conversation, viewerID string) model.Conversation {
	conv.mu.RLock()
	out := model.Conversation{
		ID:        conv.id,
		Type:      conv.kind,
		Title:     conv.title,
		CreatedAt: conv.createdAt,
		UpdatedAt: conv.updatedAt,
		CreatedBy: conv.createdBy,
		Messages:  cloneMessages(conv.messages),
		Pinned:    conv.pinned,
		GroupID:   conv.groupID,
	}
	if viewerID != "" {
		out.UnreadCount = conv.unread[viewerID]
	}
	conv.mu.RUnlock()

	out.Participants = s.identity.participants(conv.participants)
	switch conv.kind {
	case model.ConversationDirect:
		// A direct conversation is titled after the other participant, so a
		// view without a viewer keeps the stored title.
		if viewerID == "" {
			break
		}
		for _, p := range out.Participants {
			if p.ID != viewerID {
				out.Title = p.Name
				break
			}
		}
	case model.ConversationGroup:
		if out.Title == "" {
			out.Title = model.DefaultGroupTitle
		}
	}
	return out
}

// recountUnread derives per-user unread counts from read-by sets.
func recountUnread(participants []string, messages []model.Message) map[string]int {
	unread := make(map[string]int, len(participants))
	for _, p := range participants {
		unread[p] = countUnread(messages, p)
	}
	return unread
}

func countUnread(messages []model.Message, userID string) int {
	return lo.CountBy(messages, func(m model.Message) bool {
		return m.SenderID != userID && !m.IsReadBy(userID)
	})
}

func cloneMessages(in []model.Message) []model.Message {
	if in == nil {
		return []model.Message{}
	}
	out := make([]model.Message, len(in))
	for i, m := range in {
		out[i] = cloneMessage(m)
	}
	return out
}

func cloneMessage(m model.Message) model.Message {
	m.ReadBy = append([]string(nil), m.ReadBy...)
	if m.Attachments != nil {
		m.Attachments = append([]model.Attachment(nil), m.Attachments...)
	}
	return m
}
