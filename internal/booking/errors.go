package booking

import (
	"fmt"

	"petshop/internal/api"

	"github.com/cockroachdb/errors"
)

var (
	// ErrValidation marks a draft rejected locally. No request was issued.
	ErrValidation = errors.New("invalid booking")
	// ErrSubmitInProgress is returned while another submission is pending.
	ErrSubmitInProgress = errors.New("booking submission already in progress")
	// ErrNotAuthenticated is returned when no session token is available.
	ErrNotAuthenticated = errors.New("login required to book")
	// ErrSlotUnavailable rejects selecting an unknown or occupied slot.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrSlotTaken marks a submission rejected because the slot was claimed first.
	ErrSlotTaken = api.ErrSlotTaken
)

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return errors.Mark(&ValidationError{Field: field, Message: message}, ErrValidation)
}
