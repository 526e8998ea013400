package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/study-collab/internal/apperr"
)

func TestNewAttachment(t *testing.T) {
	a, err := NewAttachment(AttachmentDocument, "  notes.pdf ", " https://files.example/notes.pdf ")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "notes.pdf", a.Name)
	assert.Equal(t, "https://files.example/notes.pdf", a.URL)

	b, err := NewAttachment(AttachmentDocument, "notes.pdf", "https://files.example/notes.pdf")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = NewAttachment("video", "clip", "https://x")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = NewAttachment(AttachmentLink, " ", "https://x")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = NewAttachment(AttachmentLink, "site", "")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = NewAttachment(AttachmentImage, "pic", "http://[::1")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, PresenceAway.Valid())
	assert.False(t, Presence("asleep").Valid())
	assert.True(t, AttachmentLink.Valid())
	assert.False(t, AttachmentKind("").Valid())
}

func TestEvent_ConcernsUser(t *testing.T) {
	broadcast := Event{Type: EventPresenceChanged}
	assert.True(t, broadcast.ConcernsUser("anyone"))

	targeted := Event{Type: EventMessageAppended, Recipients: []string{"alice", "bob"}}
	assert.True(t, targeted.ConcernsUser("bob"))
	assert.False(t, targeted.ConcernsUser("carol"))
}

func TestConversation_ActivityAndSummary(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := Conversation{ID: "c1", CreatedAt: created, UnreadCount: 2}

	assert.Equal(t, created, c.LastActivity())
	assert.Nil(t, c.LastMessage())

	c.Messages = []Message{
		{ID: "m1", Timestamp: created.Add(time.Minute), ReadBy: []string{"alice"}},
		{ID: "m2", Timestamp: created.Add(2 * time.Minute)},
	}
	c.Participants = []Participant{{ID: "alice"}, {ID: "bob"}}

	assert.Equal(t, created.Add(2*time.Minute), c.LastActivity())
	assert.True(t, c.HasParticipant("bob"))
	assert.False(t, c.HasParticipant("carol"))
	assert.True(t, c.Messages[0].IsReadBy("alice"))
	assert.False(t, c.Messages[1].IsReadBy("alice"))

	s := c.Summary()
	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, 2, s.UnreadCount)
	require.NotNil(t, s.LastMessage)
	assert.Equal(t, "m2", s.LastMessage.ID)
}
