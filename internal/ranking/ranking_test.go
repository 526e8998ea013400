package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/study-collab/internal/apperr"
	"github.com/capitalize-ai/study-collab/internal/model"
)

func at(sec int64) time.Time { return time.Unix(sec, 0) }

func conv(id string, created int64, pinned bool, msgTimes ...int64) model.Conversation {
	c := model.Conversation{ID: id, Type: model.ConversationGroup, CreatedAt: at(created), Pinned: pinned}
	for _, ts := range msgTimes {
		c.Messages = append(c.Messages, model.Message{Timestamp: at(ts)})
	}
	return c
}

func ids(cs []model.Conversation) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestRank_PinnedFirstThenRecency(t *testing.T) {
	in := []model.Conversation{
		conv("old", 1, false, 10),
		conv("pinned-old", 1, true, 5),
		conv("new", 1, false, 100),
		conv("pinned-new", 1, true, 50),
	}

	got := Rank(in)
	require.Equal(t, []string{"pinned-new", "pinned-old", "new", "old"}, ids(got))
	require.Equal(t, "old", in[0].ID, "input must not be reordered")
}

func TestRank_EmptyConversationUsesCreationTime(t *testing.T) {
	in := []model.Conversation{
		conv("chatty", 1, false, 40),
		conv("fresh-group", 60, false),
		conv("stale-group", 20, false),
	}
	require.Equal(t, []string{"fresh-group", "chatty", "stale-group"}, ids(Rank(in)))
}

func TestRank_StableForTies(t *testing.T) {
	in := []model.Conversation{
		conv("first", 5, false),
		conv("second", 5, false),
		conv("third", 5, false),
	}
	require.Equal(t, []string{"first", "second", "third"}, ids(Rank(in)))
}

func TestFilter_Query(t *testing.T) {
	cs := []model.Conversation{
		{ID: "1", Title: "Calculus Crew"},
		{ID: "2", Title: "x", Participants: []model.Participant{{ID: "u", Name: "Marie Curie"}}},
		{ID: "3", Title: "y", Messages: []model.Message{{Content: "See you at the LIBRARY"}}},
		{ID: "4", Title: "z"},
	}

	require.Equal(t, []string{"1"}, ids(Filter(cs, "calc", KindAll)))
	require.Equal(t, []string{"2"}, ids(Filter(cs, "CURIE", KindAll)))
	require.Equal(t, []string{"3"}, ids(Filter(cs, "library", KindAll)))
	require.Equal(t, []string{"1", "2", "3", "4"}, ids(Filter(cs, "  ", KindAll)))
	require.Empty(t, Filter(cs, "physics", KindAll))
}

func TestFilter_Kind(t *testing.T) {
	cs := []model.Conversation{
		{ID: "d", Type: model.ConversationDirect, UnreadCount: 2},
		{ID: "g", Type: model.ConversationGroup},
		{ID: "g2", Type: model.ConversationGroup, UnreadCount: 1},
	}

	require.Equal(t, []string{"d", "g2"}, ids(Filter(cs, "", KindUnread)))
	require.Equal(t, []string{"d"}, ids(Filter(cs, "", KindDirect)))
	require.Equal(t, []string{"g", "g2"}, ids(Filter(cs, "", KindGroup)))
	require.Len(t, Filter(cs, "", KindAll), 3)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	require.Equal(t, KindAll, k)

	k, err = ParseKind("Unread")
	require.NoError(t, err)
	require.Equal(t, KindUnread, k)

	_, err = ParseKind("archived")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
