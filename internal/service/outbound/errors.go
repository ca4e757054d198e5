package outbound

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// TextCodeInvalidMessage marks outbound messages rejected before dispatch.
const TextCodeInvalidMessage = "INVALID_OUTBOUND_MESSAGE"

func validationError(field, format string, args ...any) error {
	message := fmt.Sprintf(format, args...)
	return goerrors.NewValidation("outbound: "+message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeInvalidMessage)
}

func decodeError(err error, field string) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "outbound: malformed "+field).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeInvalidMessage)
}
