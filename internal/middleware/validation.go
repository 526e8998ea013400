package middleware

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/capitalize-ai/study-collab/internal/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks the validate tags of a request body and the UTF-8
// validity of its strings. Failures are reported as InvalidArgument.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return apperr.InvalidArgument("%s", strings.Join(msgs, "; "))
		}
		return &apperr.Error{Kind: apperr.KindInvalidArgument, Message: "invalid request", Err: err}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s exceeds maximum length %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// ValidateText rejects strings that are not valid UTF-8.
func ValidateText(field, s string) error {
	if !utf8.ValidString(s) {
		return apperr.InvalidArgument("%s must be valid UTF-8", field)
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.InvalidArgument("invalid conversation ID format")
	}
	return nil
}

// ValidateUserID validates a user id taken from a path or body.
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.InvalidArgument("user ID cannot be empty")
	}
	if len(id) > 128 {
		return apperr.InvalidArgument("user ID exceeds maximum length")
	}
	return ValidateText("user ID", id)
}
