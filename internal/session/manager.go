// Package session issues and resolves sessions for signed-in farmers. A session
// is an explicit value: middleware resolves it from the bearer token and places
// it in the request context, and handlers read it from there.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
	"github.com/mzansi-solutions/farm-alert-service/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrInvalidName     = errors.New("display name is required")
)

const (
	keyPrefix  = "session:"
	DefaultTTL = 24 * time.Hour
)

// Manager stores sessions in a store.Store under session:<token>.
type Manager struct {
	store  store.Store
	auth   Authenticator
	ttl    time.Duration
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewManager creates a Manager. A non-positive ttl uses DefaultTTL.
func NewManager(st store.Store, auth Authenticator, ttl time.Duration, clock clockwork.Clock, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: st, auth: auth, ttl: ttl, clock: clock, logger: logger}
}

// Login verifies idToken and opens a new session.
func (m *Manager) Login(ctx context.Context, idToken string) (s models.Session, err error) {
	defer func() { record("login", err) }()

	id, err := m.auth.Verify(idToken)
	if err != nil {
		return models.Session{}, err
	}
	name := id.Name
	if name == "" {
		name = models.DefaultUserName
	}
	now := m.clock.Now()
	s = models.Session{
		Token:     uuid.NewString(),
		UserID:    id.UserID,
		Email:     id.Email,
		Name:      name,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.save(ctx, s); err != nil {
		return models.Session{}, err
	}
	m.logger.Info("session opened",
		zap.String("user_id", s.UserID),
		zap.Time("expires_at", s.ExpiresAt),
	)
	return s, nil
}

// Get resolves a token. Unknown and expired tokens return ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, token string) (s models.Session, err error) {
	defer func() { record("get", err) }()

	if strings.TrimSpace(token) == "" {
		return models.Session{}, ErrSessionNotFound
	}
	raw, ok, err := m.store.Get(ctx, keyPrefix+token)
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if !m.clock.Now().Before(s.ExpiresAt) {
		_ = m.store.Delete(ctx, keyPrefix+token)
		return models.Session{}, ErrSessionNotFound
	}
	return s, nil
}

// UpdateName sets the display name, completing profile setup. The expiry is unchanged.
func (m *Manager) UpdateName(ctx context.Context, token, name string) (models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		record("update", ErrInvalidName)
		return models.Session{}, ErrInvalidName
	}
	s, err := m.Get(ctx, token)
	if err != nil {
		return models.Session{}, err
	}
	s.Name = name
	err = m.save(ctx, s)
	record("update", err)
	if err != nil {
		return models.Session{}, err
	}
	return s, nil
}

// Logout deletes the session. Logging out an unknown token is not an error.
func (m *Manager) Logout(ctx context.Context, token string) (err error) {
	defer func() { record("logout", err) }()
	if err := m.store.Delete(ctx, keyPrefix+token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Manager) save(ctx context.Context, s models.Session) error {
	ttl := s.ExpiresAt.Sub(m.clock.Now())
	if ttl <= 0 {
		return ErrSessionNotFound
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, keyPrefix+s.Token, raw, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func record(op string, err error) {
	result := observability.ResultLabel(err)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrInvalidToken) {
		result = "rejected"
	}
	observability.SessionOperationsTotal.WithLabelValues(op, result).Inc()
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session placed by NewContext, if any.
func FromContext(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(contextKey{}).(models.Session)
	return s, ok
}
