// Package slots generates candidate booking windows for a calendar date.
package slots

import (
	"fmt"
	"time"

	"petshop/internal/config"
	"petshop/internal/models"
)

// Policy is the operating-hours policy. Open and Close are offsets from midnight;
// a slot may start at Open and at every Step after it while the start is before Close.
type Policy struct {
	Open       time.Duration
	Close      time.Duration
	Step       time.Duration
	SlotLength time.Duration
	Location   *time.Location
}

// DefaultPolicy is 08:00 to 17:30 in 30-minute steps with one-hour slots.
func DefaultPolicy() Policy {
	return Policy{
		Open:       8 * time.Hour,
		Close:      17*time.Hour + 30*time.Minute,
		Step:       30 * time.Minute,
		SlotLength: time.Hour,
		Location:   time.Local,
	}
}

// PolicyFromConfig builds a policy from the booking config section.
func PolicyFromConfig(cfg config.BookingConfig) (Policy, error) {
	open, err := parseClock(cfg.Open)
	if err != nil {
		return Policy{}, fmt.Errorf("booking.open: %w", err)
	}
	closing, err := parseClock(cfg.Close)
	if err != nil {
		return Policy{}, fmt.Errorf("booking.close: %w", err)
	}
	if closing <= open {
		return Policy{}, fmt.Errorf("booking.close %s must be after booking.open %s", cfg.Close, cfg.Open)
	}
	if cfg.StepMinutes <= 0 || cfg.SlotMinutes <= 0 {
		return Policy{}, fmt.Errorf("booking step and slot minutes must be positive")
	}

	return Policy{
		Open:       open,
		Close:      closing,
		Step:       time.Duration(cfg.StepMinutes) * time.Minute,
		SlotLength: time.Duration(cfg.SlotMinutes) * time.Minute,
		Location:   cfg.Location(),
	}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Generate returns the slots of date's calendar day that start strictly after now.
// The year, month and day are taken from date as given and the slots are placed in
// the policy location. Occupancy is not evaluated here.
func Generate(date, now time.Time, policy Policy) []models.Slot {
	loc := policy.Location
	if loc == nil {
		loc = time.Local
	}
	if policy.Step <= 0 {
		return nil
	}

	y, m, d := date.Date()

	var out []models.Slot
	for offset := policy.Open; offset < policy.Close; offset += policy.Step {
		hour := int(offset / time.Hour)
		minute := int((offset % time.Hour) / time.Minute)
		start := time.Date(y, m, d, hour, minute, 0, 0, loc)
		if !start.After(now) {
			continue
		}
		out = append(out, models.Slot{
			StartAt: start,
			EndAt:   start.Add(policy.SlotLength),
			Label:   start.Format(models.SlotLabelLayout),
		})
	}
	return out
}
