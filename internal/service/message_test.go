package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/study-collab/internal/apperr"
	"github.com/capitalize-ai/study-collab/internal/model"
)

func TestSend_HelloScenario(t *testing.T) {
	clock := newFakeClock(100)
	core, pub := newTestCore(t, clock, "A", "B")
	ctx := context.Background()

	conv, err := core.Conversations.CreateDirect(ctx, "A", "B")
	require.NoError(t, err)

	msg, err := core.Messages.Send(ctx, conv.ID, "A", "hello", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, msg.ReadBy)
	require.Equal(t, "User A", msg.SenderName)
	require.Equal(t, int64(100), msg.Timestamp.Unix())

	n, err := core.Reads.UnreadCount(ctx, conv.ID, "B")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = core.Reads.UnreadCount(ctx, conv.ID, "A")
	require.NoError(t, err)
	require.Equal(t, 0, n)
	requireUnreadConsistent(t, core, conv.ID)

	marked, err := core.Reads.MarkRead(ctx, conv.ID, "B")
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	n, err = core.Reads.UnreadCount(ctx, conv.ID, "B")
	require.NoError(t, err)
	require.Equal(t, 0, n)
	requireUnreadConsistent(t, core, conv.ID)

	appended := pub.ofType(model.EventMessageAppended)
	require.Len(t, appended, 1)
	require.Equal(t, conv.ID, appended[0].ConversationID)
	require.Equal(t, msg.ID, appended[0].Message.ID)
	require.ElementsMatch(t, []string{"A", "B"}, appended[0].Recipients)
}

func TestSend_Errors(t *testing.T) {
	core, _ := newTestCore(t, nil, "a", "b", "c")
	ctx := context.Background()

	_, err := core.Messages.Send(ctx, "missing", "a", "hi", nil)
	require.ErrorIs(t, err, apperr.ErrConversationNotFound)

	conv, err := core.Conversations.CreateDirect(ctx, "a", "b")
	require.NoError(t, err)

	_, err = core.Messages.Send(ctx, conv.ID, "c", "hi", nil)
	require.ErrorIs(t, err, apperr.ErrNotAParticipant)

	_, err = core.Messages.Send(ctx, conv.ID, "a", " \n\t", nil)
	require.ErrorIs(t, err, apperr.ErrEmptyMessage)

	_, err = core.Messages.Send(ctx, conv.ID, "a", "", []model.Attachment{{ID: "x", Kind: "video", URL: "u"}})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	for _, name := range []string{"", "   "} {
		_, err = core.Messages.Send(ctx, conv.ID, "a", "", []model.Attachment{
			{ID: "x", Kind: model.AttachmentDocument, Name: name, URL: "https://files.example/notes.pdf"},
		})
		require.ErrorIs(t, err, apperr.ErrInvalidArgument, "name %q", name)
	}

	got, err := core.Conversations.Get(ctx, conv.ID, "a")
	require.NoError(t, err)
	require.Empty(t, got.Messages)
}

func TestSend_NonParticipantCheckedBeforeEmptyContent(t *testing.T) {
	core, _ := newTestCore(t, nil, "a", "b", "c")
	ctx := context.Background()

	conv, err := core.Conversations.CreateDirect(ctx, "a", "b")
	require.NoError(t, err)
	_, err = core.Messages.Send(ctx, conv.ID, "c", "", nil)
	require.ErrorIs(t, err, apperr.ErrNotAParticipant)
}

func TestSend_AttachmentOnlyMessage(t *testing.T) {
	core, _ := newTestCore(t, nil, "a", "b")
	ctx := context.Background()

	conv, err := core.Conversations.CreateDirect(ctx, "a", "b")
	require.NoError(t, err)
	att, err := model.NewAttachment(model.AttachmentDocument, "notes.pdf", "https://files.example/notes.pdf")
	require.NoError(t, err)

	msg, err := core.Messages.Send(ctx, conv.ID, "a", "", []model.Attachment{att})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, att, msg.Attachments[0])
}

func TestSend_TimestampsStayMonotonic(t *testing.T) {
	clock := newFakeClock(500)
	core, _ := newTestCore(t, clock, "a", "b")
	ctx := context.Background()

	conv, err := core.Conversations.CreateDirect(ctx, "a", "b")
	require.NoError(t, err)

	first, err := core.Messages.Send(ctx, conv.ID, "a", "one", nil)
	require.NoError(t, err)
	second, err := core.Messages.Send(ctx, conv.ID, "b", "two", nil)
	require.NoError(t, err)

	clock.Set(400) // wall clock stepped backwards
	third, err := core.Messages.Send(ctx, conv.ID, "a", "three", nil)
	require.NoError(t, err)

	require.True(t, second.Timestamp.After(first.Timestamp))
	require.True(t, third.Timestamp.After(second.Timestamp))
	require.Equal(t, first.Timestamp.Add(2*time.Nanosecond), third.Timestamp)

	got, err := core.Conversations.Get(ctx, conv.ID, "a")
	require.NoError(t, err)
	require.Equal(t, third.Timestamp, got.UpdatedAt)
}

func TestSend_ConcurrentSendersKeepInvariants(t *testing.T) {
	core, _ := newTestCore(t, nil, "a", "b", "c")
	ctx := context.Background()

	g, err := core.Conversations.CreateGroup(ctx, "a", "Busy", []string{"b", "c"}, "")
	require.NoError(t, err)
	other, err := core.Conversations.CreateDirect(ctx, "a", "b")
	require.NoError(t, err)

	const perSender = 50
	var wg sync.WaitGroup
	for _, sender := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := core.Messages.Send(ctx, g.ID, sender, fmt.Sprintf("%s-%d", sender, i), nil)
				assert.NoError(t, err)
				if i%10 == 0 {
					_, err = core.Reads.MarkRead(ctx, g.ID, sender)
					assert.NoError(t, err)
				}
			}
		}(sender)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < perSender; i++ {
			_, err := core.Messages.Send(ctx, other.ID, "b", "side", nil)
			assert.NoError(t, err)
			_ = core.Conversations.List(ctx, "a")
		}
	}()
	wg.Wait()

	got, err := core.Conversations.Get(ctx, g.ID, "a")
	require.NoError(t, err)
	require.Len(t, got.Messages, 3*perSender)
	for i := 1; i < len(got.Messages); i++ {
		require.False(t, got.Messages[i].Timestamp.Before(got.Messages[i-1].Timestamp))
	}
	requireUnreadConsistent(t, core, g.ID)
	requireUnreadConsistent(t, core, other.ID)
}

func TestListMessages_Paging(t *testing.T) {
	clock := newFakeClock(10)
	core, _ := newTestCore(t, clock, "a", "b", "c")
	ctx := context.Background()

	conv, err := core.Conversations.CreateDirect(ctx, "a", "b")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		clock.Set(int64(10 + i))
		_, err := core.Messages.Send(ctx, conv.ID, "a", fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}

	page, more, err := core.Messages.ListMessages(ctx, conv.ID, "b", time.Time{}, 2)
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, []string{"m0", "m1"}, contents(page))

	page, more, err = core.Messages.ListMessages(ctx, conv.ID, "b", page[1].Timestamp, 10)
	require.NoError(t, err)
	require.False(t, more)
	require.Equal(t, []string{"m2", "m3", "m4"}, contents(page))

	_, _, err = core.Messages.ListMessages(ctx, conv.ID, "c", time.Time{}, 0)
	require.ErrorIs(t, err, apperr.ErrNotAParticipant)
}

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
