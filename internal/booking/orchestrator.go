// Package booking drives slot selection and booking submission.
package booking

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"petshop/internal/api"
	"petshop/internal/domain"
	"petshop/internal/events"
	"petshop/internal/metrics"
	"petshop/internal/models"
	"petshop/internal/slots"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Occupancy is the subset of the occupancy tracker the orchestrator drives.
type Occupancy interface {
	Refresh(ctx context.Context) error
	IsOccupied(at time.Time) bool
	MarkOccupied(at time.Time)
}

// Catalog resolves a service by id.
type Catalog interface {
	Find(ctx context.Context, id int64) (models.Service, error)
}

// SessionSource exposes the current login state.
type SessionSource interface {
	Current() models.Session
}

// Form holds the customer fields of a submission.
type Form struct {
	CustomerName  string
	CustomerEmail string
	Observations  string
}

// Orchestrator owns the slot view and the selection state of one booking flow.
type Orchestrator struct {
	occupancy Occupancy
	gateway   domain.BookingGateway
	catalog   Catalog
	session   SessionSource
	publisher domain.EventPublisher
	policy    slots.Policy
	logger    *zerolog.Logger
	now       func() time.Time

	inFlight atomic.Bool

	mu          sync.Mutex
	state       State
	lastOutcome State
	date        time.Time
	service     *models.Service
	view        []models.Slot
	chosen      *models.Slot
}

// NewOrchestrator wires an orchestrator. publisher may be nil.
func NewOrchestrator(
	occupancy Occupancy,
	gateway domain.BookingGateway,
	catalog Catalog,
	session SessionSource,
	publisher domain.EventPublisher,
	policy slots.Policy,
	logger *zerolog.Logger,
) *Orchestrator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Orchestrator{
		occupancy: occupancy,
		gateway:   gateway,
		catalog:   catalog,
		session:   session,
		publisher: publisher,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
		state:     StateIdle,
	}
}

// Load picks a date and service, refreshes occupancy and rebuilds the slot view.
// Only the calendar components of date are used; the slots are placed in the policy location.
// A failed refresh is logged and the previous occupancy data is used.
func (o *Orchestrator) Load(ctx context.Context, date time.Time, serviceID int64) error {
	svc, err := o.catalog.Find(ctx, serviceID)
	if err != nil {
		return errors.Wrapf(err, "load service %d", serviceID)
	}

	o.refreshOccupancy(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.date = date
	o.service = &svc
	o.chosen = nil
	o.regenerate()
	o.state = StateSelecting
	return nil
}

func (o *Orchestrator) Slots() []models.Slot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Slot(nil), o.view...)
}

// Select chooses the slot starting at start. Occupied or unknown slots are
// rejected without a state change, as is any selection during a submission.
func (o *Orchestrator) Select(start time.Time) error {
	if o.inFlight.Load() {
		return ErrSubmitInProgress
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateSubmitting {
		return ErrSubmitInProgress
	}
	for i := range o.view {
		if !o.view[i].StartAt.Equal(start) {
			continue
		}
		if o.view[i].IsOccupied {
			return errors.Wrapf(ErrSlotUnavailable, "slot %s is occupied", o.view[i].Label)
		}
		slot := o.view[i]
		o.chosen = &slot
		o.state = StateSlotChosen
		return nil
	}
	return errors.Wrapf(ErrSlotUnavailable, "no slot starts at %s", start.Format(time.RFC3339))
}

// Submit validates the form and sends a single booking request. A call made
// while another submission is pending returns ErrSubmitInProgress and sends nothing.
func (o *Orchestrator) Submit(ctx context.Context, form Form) (*models.Confirmation, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		metrics.IncBooking(metrics.OutcomeDuplicate)
		return nil, ErrSubmitInProgress
	}
	defer o.inFlight.Store(false)

	o.mu.Lock()
	svc, slot, err := o.validate(form)
	if err != nil {
		o.state = StateSelecting
		o.mu.Unlock()
		metrics.IncBooking(metrics.OutcomeInvalid)
		return nil, err
	}
	o.state = StateSubmitting
	o.mu.Unlock()

	sess := o.session.Current()
	if !sess.Authenticated() {
		o.setState(StateSelecting)
		metrics.IncBooking(metrics.OutcomeInvalid)
		return nil, ErrNotAuthenticated
	}

	draft := models.BookingDraft{
		ServiceID:     svc.ID,
		StartAt:       slot.StartAt,
		CustomerName:  strings.TrimSpace(form.CustomerName),
		CustomerEmail: strings.TrimSpace(form.CustomerEmail),
		Observations:  form.Observations,
	}
	if sess.UserID != 0 {
		id := sess.UserID
		draft.UserID = &id
	}

	if o.occupancy.IsOccupied(draft.StartAt) {
		err := errors.Mark(errors.New(api.SlotTakenSignature), ErrSlotTaken)
		o.conflict(ctx, svc, draft, err)
		return nil, err
	}

	req := o.request(draft)
	log := o.logger.With().Int64("service_id", svc.ID).Str("start_at_local", req.StartAtLocal).Logger()
	log.Info().Msg("submitting booking")

	resp, err := o.gateway.CreateBooking(ctx, sess.Token, req)
	if err != nil {
		if isConflict(err) {
			err = errors.Mark(err, ErrSlotTaken)
			log.Warn().Err(err).Msg("slot taken before commit")
			o.conflict(ctx, svc, draft, err)
			return nil, err
		}
		log.Error().Err(err).Msg("booking failed")
		o.fail(svc, draft, req.StartAtLocal, err)
		return nil, err
	}

	// only after the server accepted the booking
	o.occupancy.MarkOccupied(draft.StartAt)

	conf := &models.Confirmation{
		ServiceID:     svc.ID,
		ServiceName:   svc.Name,
		TotalPrice:    svc.Price,
		CustomerName:  draft.CustomerName,
		CustomerEmail: draft.CustomerEmail,
		StartAt:       draft.StartAt,
		StartAtLocal:  req.StartAtLocal,
		Status:        models.StatusPending,
	}
	if resp != nil {
		conf.Booking = resp.Booking
	}

	o.mu.Lock()
	for i := range o.view {
		if o.view[i].StartAt.Equal(draft.StartAt) {
			o.view[i].IsOccupied = true
		}
	}
	o.chosen = nil
	o.state = StateConfirmed
	o.lastOutcome = StateConfirmed
	o.mu.Unlock()

	metrics.IncBooking(metrics.OutcomeConfirmed)
	o.publish(events.EventBookingConfirmed, svc, draft, req.StartAtLocal, models.StatusPending, nil)
	log.Info().Msg("booking confirmed")
	return conf, nil
}

func (o *Orchestrator) validate(form Form) (models.Service, models.Slot, error) {
	switch {
	case o.service == nil:
		return models.Service{}, models.Slot{}, invalid("service", "is required")
	case o.date.IsZero():
		return models.Service{}, models.Slot{}, invalid("date", "is required")
	case o.chosen == nil:
		return models.Service{}, models.Slot{}, invalid("slot", "is required")
	case strings.TrimSpace(form.CustomerName) == "":
		return models.Service{}, models.Slot{}, invalid("customer_name", "is required")
	case strings.TrimSpace(form.CustomerEmail) == "":
		return models.Service{}, models.Slot{}, invalid("customer_email", "is required")
	case !emailPattern.MatchString(strings.TrimSpace(form.CustomerEmail)):
		return models.Service{}, models.Slot{}, invalid("customer_email", "is not a valid address")
	}
	return *o.service, *o.chosen, nil
}

func (o *Orchestrator) request(d models.BookingDraft) models.BookingRequest {
	return models.BookingRequest{
		ServiceID:     d.ServiceID,
		StartAtLocal:  FormatLocal(d.StartAt, o.policy.Location),
		Observations:  d.Observations,
		CustomerName:  d.CustomerName,
		CustomerEmail: d.CustomerEmail,
		UserID:        d.UserID,
	}
}

// conflict refreshes occupancy and rebuilds the view so another slot can be picked.
// Nothing is marked occupied locally.
func (o *Orchestrator) conflict(ctx context.Context, svc models.Service, d models.BookingDraft, err error) {
	o.mu.Lock()
	o.state = StateConflictDetected
	o.lastOutcome = StateConflictDetected
	o.mu.Unlock()

	metrics.IncBooking(metrics.OutcomeConflict)
	o.publish(events.EventBookingConflict, svc, d, FormatLocal(d.StartAt, o.policy.Location), "", err)

	o.refreshOccupancy(ctx)

	o.mu.Lock()
	o.chosen = nil
	o.regenerate()
	o.state = StateSelecting
	o.mu.Unlock()
}

func (o *Orchestrator) fail(svc models.Service, d models.BookingDraft, local string, err error) {
	o.mu.Lock()
	o.state = StateFailed
	o.lastOutcome = StateFailed
	o.mu.Unlock()

	metrics.IncBooking(metrics.OutcomeFailed)
	o.publish(events.EventBookingFailed, svc, d, local, "", err)

	o.setState(StateSelecting)
}

func (o *Orchestrator) refreshOccupancy(ctx context.Context) {
	if err := o.occupancy.Refresh(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("using stale occupancy data")
	}
}

// regenerate rebuilds the view from the policy and current occupancy. Caller holds mu.
func (o *Orchestrator) regenerate() {
	view := slots.Generate(o.date, o.now(), o.policy)
	for i := range view {
		view[i].IsOccupied = o.occupancy.IsOccupied(view[i].StartAt)
	}
	o.view = view
}

func (o *Orchestrator) publish(eventType string, svc models.Service, d models.BookingDraft, local, status string, err error) {
	if o.publisher == nil {
		return
	}
	payload := events.BookingEventPayload{
		ServiceID:    svc.ID,
		ServiceName:  svc.Name,
		StartAt:      d.StartAt,
		StartAtLocal: local,
		UserID:       d.UserID,
		Status:       status,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if perr := o.publisher.PublishJSON(eventType, payload); perr != nil {
		o.logger.Warn().Err(perr).Str("event", eventType).Msg("publish booking event")
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastOutcome returns the terminal state of the most recent submission, or StateIdle.
func (o *Orchestrator) LastOutcome() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastOutcome
}

// Reset drops the date, service and view and returns to Idle.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.date = time.Time{}
	o.service = nil
	o.view = nil
	o.chosen = nil
	o.state = StateIdle
}

// FormatLocal renders t as the wall-clock time of loc in the layout the booking endpoint expects.
func FormatLocal(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(models.LocalDateTimeLayout)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken) || strings.Contains(err.Error(), api.SlotTakenSignature)
}
