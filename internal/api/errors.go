package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrTransport marks failures where no HTTP response was received.
	ErrTransport = errors.New("remote api unreachable")
	// ErrSlotTaken marks a booking rejected because the slot is already claimed.
	ErrSlotTaken = errors.New("slot already taken")
)

// SlotTakenSignature is the message fragment the booking endpoint uses for conflicts.
const SlotTakenSignature = "Horário já ocupado"

// HTTPError is a non-2xx response. Message is the server's message verbatim.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Erro HTTP: %d", e.Status)
}

// IsConflict reports whether the response describes an already-booked slot.
func (e *HTTPError) IsConflict() bool {
	return e.Status == http.StatusConflict || strings.Contains(e.Message, SlotTakenSignature)
}

// classify marks the error so callers can branch with errors.Is.
func classify(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.IsConflict() {
			return errors.Mark(err, ErrSlotTaken)
		}
		return err
	}
	return errors.Mark(err, ErrTransport)
}

// Retryable reports whether a GET may be repeated: transport failures and 5xx only.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}
	return errors.Is(err, ErrTransport)
}
