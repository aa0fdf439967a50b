package domain

import (
	"context"

	"petshop/internal/models"
)

// KeyValueStore is the persistence port for local engine state (session and cart).
// Load returns found=false for a missing key.
type KeyValueStore interface {
	Load(ctx context.Context, key string) (value []byte, found bool, err error)
	Save(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context, keys ...string) error
}

// OccupiedSource returns the occupied instants known to the remote API as raw ISO strings.
type OccupiedSource interface {
	OccupiedSlots(ctx context.Context) ([]string, error)
}

// ServiceSource returns the remote service catalog.
type ServiceSource interface {
	Services(ctx context.Context) ([]models.Service, error)
}

// BookingGateway submits a booking on behalf of the bearer token owner.
type BookingGateway interface {
	CreateBooking(ctx context.Context, token string, req models.BookingRequest) (*models.BookingResponse, error)
}

// AuthGateway covers the remote auth endpoints.
type AuthGateway interface {
	Login(ctx context.Context, email, password string) (*models.AuthResult, error)
	Register(ctx context.Context, name, email, password string) (*models.AuthResult, error)
	Verify(ctx context.Context, token string) error
}

// EventPublisher publishes engine events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
