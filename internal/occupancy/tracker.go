// Package occupancy tracks the instants already claimed by bookings.
package occupancy

import (
	"context"
	"sync"
	"time"

	"petshop/internal/domain"
	"petshop/internal/metrics"
	"petshop/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// DefaultTolerance is the skew under which two instants are treated as the same booking.
const DefaultTolerance = time.Minute

// ErrStale marks a failed refresh. The previous snapshot is still served.
var ErrStale = errors.New("occupancy data is stale")

// Tracker holds the last fetched snapshot of occupied instants plus an
// append-only overlay of locally confirmed bookings. Only Refresh clears the overlay.
type Tracker struct {
	source    domain.OccupiedSource
	tolerance time.Duration
	location  *time.Location
	logger    *zerolog.Logger

	mu          sync.Mutex
	snapshot    []time.Time
	overlay     []time.Time
	refreshedAt time.Time
}

// NewTracker creates an empty tracker. An empty tracker reports everything as available.
// A zero tolerance matches exact instants only; a negative one falls back to DefaultTolerance.
func NewTracker(source domain.OccupiedSource, tolerance time.Duration, location *time.Location, logger *zerolog.Logger) *Tracker {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Tracker{
		source:    source,
		tolerance: tolerance,
		location:  location,
		logger:    logger,
	}
}

// Refresh replaces the snapshot with the remote list. On failure the previous
// snapshot is kept and an ErrStale-marked error is returned for the caller to
// treat as a warning.
func (t *Tracker) Refresh(ctx context.Context) error {
	raw, err := t.source.OccupiedSlots(ctx)
	if err != nil {
		metrics.IncRefresh(metrics.RefreshStale)
		t.logger.Warn().Err(err).Msg("occupancy refresh failed, keeping previous snapshot")
		return errors.Mark(errors.Wrap(err, "refresh occupied slots"), ErrStale)
	}

	parsed := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		at, perr := t.parse(s)
		if perr != nil {
			t.logger.Warn().Str("value", s).Msg("skipping unparseable occupied instant")
			continue
		}
		parsed = append(parsed, at)
	}

	t.mu.Lock()
	t.snapshot = parsed
	t.overlay = nil
	t.refreshedAt = time.Now()
	t.mu.Unlock()

	metrics.IncRefresh(metrics.RefreshSuccess)
	t.logger.Debug().Int("occupied", len(parsed)).Msg("occupancy refreshed")
	return nil
}

// Layouts of occupied instants carrying their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
}

// Layouts without an offset are read in the tracker location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	models.LocalDateTimeLayout,
}

func (t *Tracker) parse(s string) (time.Time, error) {
	for _, layout := range zonedLayouts {
		if at, err := time.Parse(layout, s); err == nil {
			return at, nil
		}
	}
	var err error
	for _, layout := range localLayouts {
		var at time.Time
		if at, err = time.ParseInLocation(layout, s, t.location); err == nil {
			return at, nil
		}
	}
	return time.Time{}, err
}

// IsOccupied reports whether any tracked instant lies strictly within the
// tolerance of at. An exact match is always occupied.
func (t *Tracker) IsOccupied(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, list := range [][]time.Time{t.snapshot, t.overlay} {
		for _, o := range list {
			if within(at, o, t.tolerance) {
				return true
			}
		}
	}
	return false
}

func within(a, b time.Time, tolerance time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff == 0 || diff < tolerance
}

// MarkOccupied appends a locally confirmed booking instant.
func (t *Tracker) MarkOccupied(at time.Time) {
	t.mu.Lock()
	t.overlay = append(t.overlay, at)
	t.mu.Unlock()
}

// Snapshot returns a copy of every tracked instant, overlay included.
func (t *Tracker) Snapshot() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]time.Time, 0, len(t.snapshot)+len(t.overlay))
	out = append(out, t.snapshot...)
	return append(out, t.overlay...)
}

// RefreshedAt is the time of the last successful refresh, zero if none.
func (t *Tracker) RefreshedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshedAt
}
