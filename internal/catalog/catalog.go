// Package catalog serves the bookable services, falling back to a local set
// when the remote list cannot be fetched.
package catalog

import (
	"context"
	"os"
	"sync"

	"petshop/internal/domain"
	"petshop/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// ErrServiceNotFound is returned by Find for an unknown id.
var ErrServiceNotFound = errors.New("service not found")

type Catalog struct {
	source   domain.ServiceSource
	fallback []models.Service
	logger   *zerolog.Logger

	mu           sync.Mutex
	services     []models.Service
	usedFallback bool
}

// New creates a catalog. An empty fallback uses the built-in service set.
func New(source domain.ServiceSource, fallback []models.Service, logger *zerolog.Logger) *Catalog {
	if len(fallback) == 0 {
		fallback = models.FallbackServices()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Catalog{source: source, fallback: fallback, logger: logger}
}

// LoadFallbackFile reads a YAML file with a top-level services list.
func LoadFallbackFile(path string) ([]models.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}

	var file struct {
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse catalog %s", path)
	}

	out := make([]models.Service, 0, len(file.Services))
	for _, s := range file.Services {
		out = append(out, s.Normalize())
	}
	return out, nil
}

// Services fetches the remote list. Any fetch error is logged and the fallback
// set is served instead.
func (c *Catalog) Services(ctx context.Context) []models.Service {
	remote, err := c.source.Services(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("service list unavailable, using fallback catalog")
		c.services = append([]models.Service(nil), c.fallback...)
		c.usedFallback = true
		return append([]models.Service(nil), c.services...)
	}

	services := make([]models.Service, 0, len(remote))
	for _, s := range remote {
		services = append(services, s.Normalize())
	}
	c.services = services
	c.usedFallback = false
	return append([]models.Service(nil), services...)
}

// Find returns the service with the given id, fetching the list on first use.
func (c *Catalog) Find(ctx context.Context, id int64) (models.Service, error) {
	c.mu.Lock()
	loaded := c.services != nil
	c.mu.Unlock()

	if !loaded {
		c.Services(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.services {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Service{}, errors.Wrapf(ErrServiceNotFound, "id %d", id)
}

// Default is the first service, the preselected choice of a new booking.
func (c *Catalog) Default(ctx context.Context) (models.Service, bool) {
	services := c.Services(ctx)
	if len(services) == 0 {
		return models.Service{}, false
	}
	return services[0], true
}

// UsingFallback reports whether the last fetch fell back to the local set.
func (c *Catalog) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedFallback
}
