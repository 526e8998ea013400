package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("send: %w", NotAParticipant("bob", "conv-1"))

	require.ErrorIs(t, err, ErrNotAParticipant)
	require.NotErrorIs(t, err, ErrConversationNotFound)
	require.Equal(t, KindNotAParticipant, KindOf(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{UserNotFound("x"), http.StatusNotFound},
		{ConversationNotFound("x"), http.StatusNotFound},
		{NotAParticipant("u", "c"), http.StatusForbidden},
		{InvalidArgument("title is required"), http.StatusBadRequest},
		{EmptyMessage(), http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("bad utf-8")
	err := &Error{Kind: KindInvalidArgument, Message: "invalid title", Err: cause}

	require.ErrorIs(t, err, cause)
	require.Equal(t, "invalid title: bad utf-8", err.Error())
}
