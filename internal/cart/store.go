// Package cart keeps the customer's cart and persists it after every change.
package cart

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"petshop/internal/domain"
	"petshop/internal/events"
	"petshop/internal/metrics"
	"petshop/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidItem is returned for items without a name.
var ErrInvalidItem = errors.New("cart item requires a name")

const (
	opAdd    = "add"
	opUpdate = "update"
	opRemove = "remove"
	opClear  = "clear"
)

// ResolveIdentity reports whether a and b are the same cart line. The name is
// the natural key when no stable id is assigned.
func ResolveIdentity(a, b models.CartItem) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	return a.Name == b.Name
}

type Store struct {
	kv        domain.KeyValueStore
	publisher domain.EventPublisher
	logger    *zerolog.Logger
	newID     func() models.ItemID

	mu    sync.Mutex
	items []models.CartItem
}

// NewStore loads the persisted cart. Corrupt data is discarded with a warning
// and the cart starts empty; storage errors are returned.
func NewStore(ctx context.Context, kv domain.KeyValueStore, publisher domain.EventPublisher, logger *zerolog.Logger) (*Store, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Store{
		kv:        kv,
		publisher: publisher,
		logger:    logger,
		newID:     newItemID,
	}

	raw, found, err := kv.Load(ctx, models.KeyCart)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if !found || len(raw) == 0 {
		return s, nil
	}

	var items []models.CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		logger.Warn().Err(err).Msg("discarding corrupt persisted cart")
		return s, nil
	}
	for _, it := range items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity <= 0 {
			continue
		}
		s.items = append(s.items, it)
	}
	return s, nil
}

func newItemID() models.ItemID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return models.ItemID(id.String())
}

// Add merges item into a matching line or appends it. A non-positive quantity counts as one.
func (s *Store) Add(ctx context.Context, item models.CartItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return ErrInvalidItem
	}
	if item.Quantity <= 0 {
		item.Quantity = models.DefaultItemQuantity
	}

	s.mu.Lock()
	merged := false
	for i := range s.items {
		if ResolveIdentity(s.items[i], item) {
			s.items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		if item.ID == "" {
			item.ID = s.newID()
		}
		s.items = append(s.items, item)
	}
	ev, err := s.persistLocked(ctx, opAdd, item.Name)
	s.mu.Unlock()

	s.publish(ev)
	return err
}

// Update sets the quantity of the lines named name. A quantity of zero or less removes them.
func (s *Store) Update(ctx context.Context, name string, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, name)
	}

	s.mu.Lock()
	changed := false
	for i := range s.items {
		if s.items[i].Name == name {
			s.items[i].Quantity = quantity
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return nil
	}
	ev, err := s.persistLocked(ctx, opUpdate, name)
	s.mu.Unlock()

	s.publish(ev)
	return err
}

// Remove deletes every line named name.
func (s *Store) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	kept := make([]models.CartItem, 0, len(s.items))
	for _, it := range s.items {
		if it.Name != name {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(s.items) {
		s.mu.Unlock()
		return nil
	}
	s.items = kept
	ev, err := s.persistLocked(ctx, opRemove, name)
	s.mu.Unlock()

	s.publish(ev)
	return err
}

// Clear empties the cart and drops the persisted copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.items = nil
	err := s.kv.Clear(ctx, models.KeyCart)
	s.mu.Unlock()

	metrics.IncCart(opClear)
	s.publish(events.CartEventPayload{Op: opClear})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to clear persisted cart")
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func (s *Store) Items() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CartItem(nil), s.items...)
}

// TotalItems sums the positive quantities.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalItems(s.items)
}

// TotalPrice sums price times quantity; missing or non-positive values contribute zero.
func (s *Store) TotalPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalPrice(s.items)
}

func totalItems(items []models.CartItem) int {
	n := 0
	for _, it := range items {
		if it.Quantity > 0 {
			n += it.Quantity
		}
	}
	return n
}

func totalPrice(items []models.CartItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// persistLocked saves the cart and returns the change event. Caller holds mu.
// The in-memory state is kept when saving fails.
func (s *Store) persistLocked(ctx context.Context, op, name string) (events.CartEventPayload, error) {
	metrics.IncCart(op)
	ev := events.CartEventPayload{
		Op:         op,
		Name:       name,
		TotalItems: totalItems(s.items),
		TotalPrice: totalPrice(s.items),
	}

	data, err := json.Marshal(s.items)
	if err != nil {
		return ev, errors.Wrap(err, "encode cart")
	}
	if err := s.kv.Save(ctx, models.KeyCart, data); err != nil {
		s.logger.Error().Err(err).Str("op", op).Msg("failed to persist cart")
		return ev, errors.Wrap(err, "save cart")
	}
	return ev, nil
}

func (s *Store) publish(ev events.CartEventPayload) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(events.EventCartChanged, ev); err != nil {
		s.logger.Warn().Err(err).Msg("publish cart event")
	}
}
