package bot

import (
	"errors"
	"net/http"

	"github.com/ronappleton/teams-approval-bot/internal/card"
	"github.com/ronappleton/teams-approval-bot/internal/workflow"
)

var (
	ErrSenderNotFound = errors.New("sender not found in roster")
	ErrNotImplemented = card.ErrNotImplemented
	ErrBadActivity    = errors.New("malformed activity")
)

// StatusOf maps a dispatch error to the HTTP status and the error code used
// in invoke error envelopes.
func StatusOf(err error) (int, string) {
	var unknown *card.UnknownCardError
	switch {
	case errors.As(err, &unknown),
		errors.Is(err, workflow.ErrUnknownVerb),
		errors.Is(err, workflow.ErrInvalidPayload),
		errors.Is(err, workflow.ErrInvalidRequest),
		errors.Is(err, workflow.ErrTerminal),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, ErrBadActivity):
		return http.StatusBadRequest, "BadRequest"
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, workflow.ErrStaleCard):
		return http.StatusPreconditionFailed, "PreconditionFailed"
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented, "NotImplemented"
	default:
		return http.StatusInternalServerError, "InternalServerError"
	}
}
