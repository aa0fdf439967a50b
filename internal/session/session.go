// Package session keeps the login state in the local key-value store.
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"petshop/internal/domain"
	"petshop/internal/events"
	"petshop/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	// ErrRejected marks a login or registration refused by the server.
	ErrRejected = errors.New("authentication rejected")
	// ErrNoSession is returned when an operation needs a token and none is stored.
	ErrNoSession = errors.New("no active session")
)

const connectionMessage = "Erro de conexão com o servidor"

// CartClearer empties the cart on logout.
type CartClearer interface {
	Clear(ctx context.Context) error
}

// Manager owns the token, user id and user name keys.
type Manager struct {
	auth      domain.AuthGateway
	kv        domain.KeyValueStore
	cart      CartClearer
	publisher domain.EventPublisher
	logger    *zerolog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	current models.Session
}

func NewManager(auth domain.AuthGateway, kv domain.KeyValueStore, cart CartClearer, publisher domain.EventPublisher, logger *zerolog.Logger) *Manager {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Manager{
		auth:      auth,
		kv:        kv,
		cart:      cart,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Current returns the session as of the last login or restore.
func (m *Manager) Current() models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Restore reads the persisted session. A token whose exp claim has passed is dropped.
func (m *Manager) Restore(ctx context.Context) error {
	token, err := m.loadString(ctx, models.KeyToken)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	if exp, ok := ExpiresAt(token); ok && !exp.After(m.now()) {
		m.logger.Info().Time("expired_at", exp).Msg("stored session expired")
		return m.forget(ctx)
	}

	idRaw, err := m.loadString(ctx, models.KeyUserID)
	if err != nil {
		return err
	}
	name, err := m.loadString(ctx, models.KeyUserName)
	if err != nil {
		return err
	}

	sess := models.Session{Token: token, UserName: name}
	if idRaw != "" {
		id, perr := strconv.ParseInt(idRaw, 10, 64)
		if perr != nil {
			m.logger.Warn().Str("user_id", idRaw).Msg("ignoring malformed stored user id")
		} else {
			sess.UserID = id
		}
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return nil
}

// Login authenticates and persists the session.
func (m *Manager) Login(ctx context.Context, email, password string) (models.Session, error) {
	result, err := m.auth.Login(ctx, email, password)
	return m.establish(ctx, result, err)
}

// Register creates an account and persists the returned session.
func (m *Manager) Register(ctx context.Context, name, email, password string) (models.Session, error) {
	result, err := m.auth.Register(ctx, name, email, password)
	return m.establish(ctx, result, err)
}

func (m *Manager) establish(ctx context.Context, result *models.AuthResult, err error) (models.Session, error) {
	if err != nil {
		m.logger.Error().Err(err).Msg("auth request failed")
		return models.Session{}, errors.Wrap(err, connectionMessage)
	}
	if result == nil || !result.Success || result.Token == "" {
		msg := "authentication failed"
		if result != nil && result.Message != "" {
			msg = result.Message
		}
		return models.Session{}, errors.Mark(errors.New(msg), ErrRejected)
	}

	sess := models.Session{Token: result.Token, UserID: result.User.ID, UserName: result.User.Name}
	if err := m.persist(ctx, sess); err != nil {
		return models.Session{}, err
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.logger.Info().Int64("user_id", sess.UserID).Msg("session established")
	return sess, nil
}

// Verify asks the server whether the stored token is still valid. A rejected
// token is forgotten; the cart is kept.
func (m *Manager) Verify(ctx context.Context) error {
	sess := m.Current()
	if !sess.Authenticated() {
		return ErrNoSession
	}
	if err := m.auth.Verify(ctx, sess.Token); err != nil {
		m.logger.Warn().Err(err).Msg("session verification failed")
		if ferr := m.forget(ctx); ferr != nil {
			return errors.CombineErrors(err, ferr)
		}
		return err
	}
	return nil
}

// Logout drops the session and the cart.
func (m *Manager) Logout(ctx context.Context) error {
	userID := m.Current().UserID

	err := m.forget(ctx)
	if m.cart != nil {
		err = errors.CombineErrors(err, m.cart.Clear(ctx))
	}

	if m.publisher != nil {
		payload := map[string]int64{"user_id": userID}
		if perr := m.publisher.PublishJSON(events.EventSessionClosed, payload); perr != nil {
			m.logger.Warn().Err(perr).Msg("publish session event")
		}
	}
	return err
}

func (m *Manager) forget(ctx context.Context) error {
	m.mu.Lock()
	m.current = models.Session{}
	m.mu.Unlock()

	if err := m.kv.Clear(ctx, models.KeyToken, models.KeyUserID, models.KeyUserName); err != nil {
		return errors.Wrap(err, "clear session")
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, sess models.Session) error {
	values := map[string]string{
		models.KeyToken:    sess.Token,
		models.KeyUserID:   strconv.FormatInt(sess.UserID, 10),
		models.KeyUserName: sess.UserName,
	}
	for key, val := range values {
		if err := m.kv.Save(ctx, key, []byte(val)); err != nil {
			return errors.Wrapf(err, "save %s", key)
		}
	}
	return nil
}

func (m *Manager) loadString(ctx context.Context, key string) (string, error) {
	raw, found, err := m.kv.Load(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "load %s", key)
	}
	if !found {
		return "", nil
	}
	return string(raw), nil
}

// ExpiresAt reads the exp claim of a JWT without verifying its signature.
// Opaque tokens report ok=false.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
