package models

import "time"

// Service is a bookable service offered by the shop.
type Service struct {
	ID              int64   `json:"id" yaml:"id"`
	Name            string  `json:"name" yaml:"name"`
	Description     string  `json:"description" yaml:"description"`
	Price           float64 `json:"price" yaml:"price"`
	DurationMinutes int     `json:"durationMinutes" yaml:"duration_minutes"`
}

// Normalize fills the fields the remote API may omit.
func (s Service) Normalize() Service {
	if s.Price < 0 {
		s.Price = 0
	}
	if s.DurationMinutes <= 0 {
		s.DurationMinutes = DefaultServiceDurationMinutes
	}
	return s
}

// FallbackServices is the built-in catalog used when the remote list is unavailable.
func FallbackServices() []Service {
	return []Service{
		{ID: 1, Name: "Banho e Tosa", Description: "Banho completo e tosa higiênica", Price: 80.00, DurationMinutes: 90},
		{ID: 2, Name: "Consulta Veterinária", Description: "Consulta com veterinário especializado", Price: 120.00, DurationMinutes: 60},
		{ID: 3, Name: "Vacinação", Description: "Aplicação de vacinas essenciais", Price: 60.00, DurationMinutes: 30},
	}
}

// Slot is a candidate booking window. It is derived and never persisted.
type Slot struct {
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	IsOccupied bool      `json:"is_occupied"`
	Label      string    `json:"label"`
}

// Available reports whether the slot may be selected.
func (s Slot) Available() bool {
	return !s.IsOccupied
}
