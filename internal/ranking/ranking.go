// Package ranking orders and filters conversation lists for display.
// Everything here is a pure projection over values returned by the store.
package ranking

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/capitalize-ai/study-collab/internal/apperr"
	"github.com/capitalize-ai/study-collab/internal/model"
)

// Kind narrows a conversation list.
type Kind string

const (
	KindAll    Kind = "all"
	KindUnread Kind = "unread"
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// ParseKind maps a query parameter to a Kind. An empty value means all.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAll, nil
	case KindAll, KindUnread, KindDirect, KindGroup:
		return k, nil
	default:
		return "", apperr.InvalidArgument("unknown conversation filter %q", s)
	}
}

// Rank returns a stably sorted copy: pinned first, then by the newest
// message timestamp descending. Empty conversations rank by creation time.
func Rank(conversations []model.Conversation) []model.Conversation {
	out := slices.Clone(conversations)
	slices.SortStableFunc(out, func(a, b model.Conversation) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return b.LastActivity().Compare(a.LastActivity())
	})
	return out
}

// Filter keeps conversations matching query and kind. The query is matched
// case-insensitively against the title, participant names and message text;
// a blank query matches everything. Unread counts are those carried by the
// views, which are relative to the user they were listed for.
func Filter(conversations []model.Conversation, query string, kind Kind) []model.Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	return lo.Filter(conversations, func(c model.Conversation, _ int) bool {
		return matchesKind(c, kind) && matchesQuery(c, q)
	})
}

func matchesKind(c model.Conversation, kind Kind) bool {
	switch kind {
	case KindUnread:
		return c.UnreadCount > 0
	case KindDirect:
		return c.Type == model.ConversationDirect
	case KindGroup:
		return c.Type == model.ConversationGroup
	default:
		return true
	}
}

func matchesQuery(c model.Conversation, q string) bool {
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Title), q) {
		return true
	}
	if lo.SomeBy(c.Participants, func(p model.Participant) bool {
		return strings.Contains(strings.ToLower(p.Name), q)
	}) {
		return true
	}
	return lo.SomeBy(c.Messages, func(m model.Message) bool {
		return strings.Contains(strings.ToLower(m.Content), q)
	})
}
