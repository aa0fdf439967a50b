package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"petshop/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Services(ctx context.Context) ([]models.Service, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]models.Service), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestCatalog_Remote(t *testing.T) {
	src := new(mockSource)
	src.On("Services", mock.Anything).Return([]models.Service{
		{ID: 5, Name: "Hidratação", Price: 45},
	}, nil)

	c := New(src, nil, nil)
	got := c.Services(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, models.DefaultServiceDurationMinutes, got[0].DurationMinutes)
	assert.False(t, c.UsingFallback())

	svc, err := c.Find(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Hidratação", svc.Name)
}

func TestCatalog_FallbackOnError(t *testing.T) {
	src := new(mockSource)
	src.On("Services", mock.Anything).Return(nil, errors.New("Erro ao carregar serviços"))

	c := New(src, nil, nil)
	got := c.Services(context.Background())
	assert.Equal(t, models.FallbackServices(), got)
	assert.True(t, c.UsingFallback())

	def, ok := c.Default(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Banho e Tosa", def.Name)
}

func TestCatalog_FindFetchesOnce(t *testing.T) {
	src := new(mockSource)
	src.On("Services", mock.Anything).Return([]models.Service{{ID: 1, Name: "Banho"}}, nil).Once()

	c := New(src, nil, nil)
	_, err := c.Find(context.Background(), 1)
	require.NoError(t, err)

	_, err = c.Find(context.Background(), 2)
	assert.True(t, errors.Is(err, ErrServiceNotFound))
	src.AssertNumberOfCalls(t, "Services", 1)
}

func TestCatalog_EmptyRemoteListIsKept(t *testing.T) {
	src := new(mockSource)
	src.On("Services", mock.Anything).Return([]models.Service{}, nil)

	c := New(src, nil, nil)
	assert.Empty(t, c.Services(context.Background()))
	_, ok := c.Default(context.Background())
	assert.False(t, ok)
}

func TestLoadFallbackFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - id: 10
    name: "Tosa Bebê"
    price: 55.5
    duration_minutes: 45
  - id: 11
    name: "Corte de unhas"
`), 0o644))

	services, err := LoadFallbackFile(path)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, 55.5, services[0].Price)
	assert.Equal(t, 45, services[0].DurationMinutes)
	assert.Equal(t, models.DefaultServiceDurationMinutes, services[1].DurationMinutes)

	src := new(mockSource)
	src.On("Services", mock.Anything).Return(nil, errors.New("offline"))
	c := New(src, services, nil)
	assert.Equal(t, services, c.Services(context.Background()))

	_, err = LoadFallbackFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
