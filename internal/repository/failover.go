package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"petshop/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverStore writes to primary and switches to fallback once primary fails.
// Recovery of the primary is retried after recoveryAfter.
type FailoverStore struct {
	primary       domain.KeyValueStore
	fallback      domain.KeyValueStore
	logger        *zerolog.Logger
	recoveryAfter time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback domain.KeyValueStore, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		logger:        logger,
		recoveryAfter: time.Minute,
	}
}

func (r *FailoverStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary state store failed, falling back")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverStore) shouldProbe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) <= r.recoveryAfter {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverStore) usePrimary() bool {
	return !r.isDown.Load() || r.shouldProbe()
}

func (r *FailoverStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if r.usePrimary() {
		val, found, err := r.primary.Load(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			return val, found, nil
		}
		r.markDown(err)
	}
	return r.fallback.Load(ctx, key)
}

func (r *FailoverStore) Save(ctx context.Context, key string, value []byte) error {
	if r.usePrimary() {
		err := r.primary.Save(ctx, key, value)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Save(ctx, key, value)
}

func (r *FailoverStore) Clear(ctx context.Context, keys ...string) error {
	// fallback may hold state written while primary was down
	fallbackErr := r.fallback.Clear(ctx, keys...)
	if r.usePrimary() {
		err := r.primary.Clear(ctx, keys...)
		if err == nil {
			r.isDown.Store(false)
			return fallbackErr
		}
		r.markDown(err)
	}
	return fallbackErr
}
