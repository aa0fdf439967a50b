package models

// StatusPending is the status of a freshly submitted booking.
const StatusPending = "pending"

// Keys of the persisted local state.
const (
	KeyToken    = "token"
	KeyUserID   = "user_id"
	KeyUserName = "user_name"
	KeyCart     = "cart"
)

const (
	// DefaultServiceDurationMinutes applies when the remote service omits a duration.
	DefaultServiceDurationMinutes = 60

	// DefaultItemQuantity applies when an added cart item carries no quantity.
	DefaultItemQuantity = 1

	// LocalDateTimeLayout is the civil-time layout expected by the booking endpoint.
	LocalDateTimeLayout = "2006-01-02 15:04:05"

	// DateLayout is the calendar-date layout used across the engine.
	DateLayout = "2006-01-02"

	// SlotLabelLayout renders slot labels.
	SlotLabelLayout = "15:04"
)
