package models

import (
	"encoding/json"
	"time"
)

// BookingDraft is the input of a single submission. It is built fresh per submit.
type BookingDraft struct {
	ServiceID     int64
	StartAt       time.Time
	CustomerName  string
	CustomerEmail string
	Observations  string
	UserID        *int64
}

// BookingRequest is the wire body of POST /bookings.
type BookingRequest struct {
	ServiceID     int64  `json:"serviceId"`
	StartAtLocal  string `json:"startAtLocal"`
	Observations  string `json:"observations"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	UserID        *int64 `json:"userId,omitempty"`
}

// BookingResponse is the success body of POST /bookings. The booking object is
// kept raw because its shape belongs to the server.
type BookingResponse struct {
	Booking map[string]any `json:"booking"`
}

// Confirmation merges the server booking with the fields derived on the client.
type Confirmation struct {
	Booking       map[string]any `json:"booking"`
	ServiceID     int64          `json:"service_id"`
	ServiceName   string         `json:"service_name"`
	TotalPrice    float64        `json:"total_price"`
	CustomerName  string         `json:"customer_name"`
	CustomerEmail string         `json:"customer_email"`
	StartAt       time.Time      `json:"start_at"`
	StartAtLocal  string         `json:"start_at_local"`
	Status        string         `json:"status"`
}

// MarshalJSON flattens the server booking and overlays the derived fields on top of it.
func (c Confirmation) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Booking)+8)
	for k, v := range c.Booking {
		out[k] = v
	}
	out["service_id"] = c.ServiceID
	out["service_name"] = c.ServiceName
	out["total_price"] = c.TotalPrice
	out["customer_name"] = c.CustomerName
	out["customer_email"] = c.CustomerEmail
	out["start_at"] = c.StartAt
	out["start_at_local"] = c.StartAtLocal
	out["status"] = c.Status
	return json.Marshal(out)
}
