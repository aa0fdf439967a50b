package cart

import (
	"context"
	"encoding/json"
	"testing"

	"petshop/internal/events"
	"petshop/internal/models"
	"petshop/internal/repository"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *repository.MemoryStore) {
	t.Helper()
	kv := repository.NewMemoryStore()
	s, err := NewStore(context.Background(), kv, nil, nil)
	require.NoError(t, err)
	return s, kv
}

func TestStore_AddMergesByName(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Add(ctx, models.CartItem{Name: "Banho", Price: 80, Quantity: 1}))
	require.NoError(t, s.Add(ctx, models.CartItem{Name: "Banho", Price: 80, Quantity: 2}))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, 3, s.TotalItems())
	assert.Equal(t, 240.0, s.TotalPrice())
}

func TestStore_AddRepeatedDefaultsToOne(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Add(ctx, models.CartItem{Name: "Ração Premium", Price: 10}))
	}
	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestStore_AddMergesByID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Add(ctx, models.CartItem{ID: "42", Name: "Coleira", Price: 25, Quantity: 1}))
	require.NoError(t, s.Add(ctx, models.CartItem{ID: "42", Name: "Coleira P", Price: 25, Quantity: 1}))
	require.NoError(t, s.Add(ctx, models.CartItem{ID: "43", Name: "Guia", Price: 30}))

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, models.ItemID("42"), items[0].ID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "Coleira", items[0].Name)
}

func TestStore_AddRejectsMissingName(t *testing.T) {
	s, _ := newTestStore(t)
	assert.ErrorIs(t, s.Add(context.Background(), models.CartItem{Price: 10}), ErrInvalidItem)
	assert.ErrorIs(t, s.Add(context.Background(), models.CartItem{Name: "  "}), ErrInvalidItem)
	assert.Empty(t, s.Items())
}

func TestStore_GeneratedIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Add(ctx, models.CartItem{Name: "A"}))
	require.NoError(t, s.Add(ctx, models.CartItem{Name: "B"}))
	items := s.Items()
	require.Len(t, items, 2)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestStore_UpdateZeroEqualsRemove(t *testing.T) {
	ctx := context.Background()
	viaUpdate, _ := newTestStore(t)
	viaRemove, _ := newTestStore(t)

	for _, s := range []*Store{viaUpdate, viaRemove} {
		require.NoError(t, s.Add(ctx, models.CartItem{Name: "Banho", Price: 80}))
		require.NoError(t, s.Add(ctx, models.CartItem{Name: "Tosa", Price: 50}))
	}

	require.NoError(t, viaUpdate.Update(ctx, "Banho", 0))
	require.NoError(t, viaRemove.Remove(ctx, "Banho"))

	assert.Equal(t, names(viaRemove.Items()), names(viaUpdate.Items()))
	assert.Equal(t, []string{"Tosa"}, names(viaUpdate.Items()))
}

func TestStore_UpdateSetsExactQuantity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Add(ctx, models.CartItem{Name: "Banho", Price: 80, Quantity: 4}))
	require.NoError(t, s.Update(ctx, "Banho", 2))
	assert.Equal(t, 2, s.Items()[0].Quantity)

	require.NoError(t, s.Update(ctx, "Desconhecido", 5))
	assert.Len(t, s.Items(), 1)

	require.NoError(t, s.Update(ctx, "Banho", -1))
	assert.Empty(t, s.Items())
}

func TestStore_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestStore(t)

	require.NoError(t, s.Add(ctx, models.CartItem{Name: "Banho", Price: 80, Quantity: 2}))
	require.NoError(t, s.Add(ctx, models.CartItem{Name: "Vacina", Price: 60}))

	restored, err := NewStore(ctx, kv, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, s.Items(), restored.Items())
	assert.Equal(t, 220.0, restored.TotalPrice())

	require.NoError(t, restored.Clear(ctx))
	_, found, err := kv.Load(ctx, models.KeyCart)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_LegacyPersistedShape(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryStore()
	require.NoError(t, kv.Save(ctx, models.KeyCart, []byte(`[
		{"id": 1718000000000, "name": "Banho", "price": 80, "quantity": 1},
		{"id": "x", "name": "Sem preço", "quantity": 2},
		{"id": 7, "name": "Zerado", "price": 5, "quantity": 0}
	]`)))

	s, err := NewStore(ctx, kv, nil, nil)
	require.NoError(t, err)
	require.Len(t, s.Items(), 2)
	assert.Equal(t, models.ItemID("1718000000000"), s.Items()[0].ID)
	assert.Equal(t, 3, s.TotalItems())
	assert.Equal(t, 80.0, s.TotalPrice())
}

func TestStore_CorruptDataResets(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryStore()
	require.NoError(t, kv.Save(ctx, models.KeyCart, []byte(`{not json`)))

	s, err := NewStore(ctx, kv, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Items())
	assert.Zero(t, s.TotalPrice())
}

type mockKV struct {
	mock.Mock
}

func (m *mockKV) Load(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Bool(1), args.Error(2)
}

func (m *mockKV) Save(ctx context.Context, key string, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockKV) Clear(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func TestStore_LoadErrorReturned(t *testing.T) {
	kv := new(mockKV)
	kv.On("Load", mock.Anything, models.KeyCart).Return(nil, false, errors.New("disk gone"))

	_, err := NewStore(context.Background(), kv, nil, nil)
	assert.Error(t, err)
}

func TestStore_SaveFailureKeepsMemory(t *testing.T) {
	kv := new(mockKV)
	kv.On("Load", mock.Anything, models.KeyCart).Return(nil, false, nil)
	kv.On("Save", mock.Anything, models.KeyCart, mock.Anything).Return(errors.New("read-only"))

	s, err := NewStore(context.Background(), kv, nil, nil)
	require.NoError(t, err)

	err = s.Add(context.Background(), models.CartItem{Name: "Banho", Price: 80})
	assert.Error(t, err)
	assert.Len(t, s.Items(), 1)
	kv.AssertExpectations(t)
}

func TestStore_PublishesChanges(t *testing.T) {
	ctx := context.Background()
	bus := events.NewEventBus()
	var got []events.CartEventPayload

	s, err := NewStore(ctx, repository.NewMemoryStore(), bus, nil)
	require.NoError(t, err)

	bus.Subscribe(events.EventCartChanged, func(e *events.Event) error {
		var p events.CartEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		// handlers may read the store
		assert.Equal(t, p.TotalItems, s.TotalItems())
		got = append(got, p)
		return nil
	})

	require.NoError(t, s.Add(ctx, models.CartItem{Name: "Banho", Price: 80, Quantity: 2}))
	require.NoError(t, s.Remove(ctx, "Banho"))
	require.NoError(t, s.Clear(ctx))

	require.Len(t, got, 3)
	assert.Equal(t, "add", got[0].Op)
	assert.Equal(t, 160.0, got[0].TotalPrice)
	assert.Equal(t, "remove", got[1].Op)
	assert.Equal(t, "clear", got[2].Op)
}

func TestResolveIdentity(t *testing.T) {
	assert.True(t, ResolveIdentity(models.CartItem{ID: "1", Name: "a"}, models.CartItem{ID: "1", Name: "b"}))
	assert.True(t, ResolveIdentity(models.CartItem{ID: "1", Name: "a"}, models.CartItem{ID: "2", Name: "a"}))
	assert.True(t, ResolveIdentity(models.CartItem{Name: "a"}, models.CartItem{Name: "a"}))
	assert.False(t, ResolveIdentity(models.CartItem{Name: "a"}, models.CartItem{Name: "b"}))
	assert.False(t, ResolveIdentity(models.CartItem{ID: "1", Name: "a"}, models.CartItem{ID: "2", Name: "b"}))
}

func names(items []models.CartItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}
