// Package apperr defines the typed failures returned by the collaboration core.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	KindUserNotFound         Kind = "USER_NOT_FOUND"
	KindConversationNotFound Kind = "CONVERSATION_NOT_FOUND"
	KindNotAParticipant      Kind = "NOT_A_PARTICIPANT"
	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindEmptyMessage         Kind = "EMPTY_MESSAGE"
)

// Error is a caller-facing failure. None of the kinds are retryable.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrUserNotFound         = &Error{Kind: KindUserNotFound, Message: "user not found"}
	ErrConversationNotFound = &Error{Kind: KindConversationNotFound, Message: "conversation not found"}
	ErrNotAParticipant      = &Error{Kind: KindNotAParticipant, Message: "not a participant"}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrEmptyMessage         = &Error{Kind: KindEmptyMessage, Message: "message has no content or attachments"}
)

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// UserNotFound reports an unknown user id.
func UserNotFound(userID string) *Error {
	return New(KindUserNotFound, "user not found: %s", userID)
}

// ConversationNotFound reports an unknown conversation id.
func ConversationNotFound(conversationID string) *Error {
	return New(KindConversationNotFound, "conversation not found: %s", conversationID)
}

// NotAParticipant reports a caller acting on a conversation they are not part of.
func NotAParticipant(userID, conversationID string) *Error {
	return New(KindNotAParticipant, "user %s is not a participant of %s", userID, conversationID)
}

// InvalidArgument reports malformed input.
func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

// EmptyMessage reports a message without text or attachments.
func EmptyMessage() *Error {
	return New(KindEmptyMessage, "message has no content or attachments")
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus converts an error to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUserNotFound, KindConversationNotFound:
		return http.StatusNotFound
	case KindNotAParticipant:
		return http.StatusForbidden
	case KindInvalidArgument, KindEmptyMessage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
