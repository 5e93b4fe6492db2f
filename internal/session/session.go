// Package session holds the explicit per-login context that every lesson
// and profile operation receives. A Session is created when the auth
// provider's token is exchanged at login and destroyed at logout or expiry.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/pkg/logger"
)

type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Claims is the subset of the auth provider's token we rely on.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens issued by the auth provider.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, errors.Unauthorized("invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, errors.Unauthorized("token has no subject")
	}
	return claims, nil
}

// Sign issues a token the Verifier accepts. Used by tooling and tests.
func (v *Verifier) Sign(subject, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// EndHook runs after a session is destroyed, by logout or by expiry.
type EndHook func(ctx context.Context, s *Session)

// Manager owns live sessions.
type Manager struct {
	verifier *Verifier
	ttl      time.Duration
	now      func() time.Time
	log      *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	hooks    []EndHook
}

func NewManager(verifier *Verifier, ttl time.Duration) *Manager {
	return &Manager{
		verifier: verifier,
		ttl:      ttl,
		now:      time.Now,
		log:      logger.Get().Named("session"),
		sessions: make(map[string]*Session),
	}
}

// OnEnd registers a hook fired for every destroyed session.
func (m *Manager) OnEnd(h EndHook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
}

// Login verifies the provider token and opens a new session.
func (m *Manager) Login(token string) (*Session, error) {
	claims, err := m.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	username := claims.Username
	if username == "" {
		username = claims.Email
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    claims.Subject,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info("session opened", zap.String("session_id", s.ID), zap.String("user_id", s.UserID))
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.Unauthorized("unknown session")
	}
	if s.Expired(m.now()) {
		return nil, errors.Unauthorized("session expired")
	}
	return s, nil
}

// Logout destroys a session and fires the end hooks.
func (m *Manager) Logout(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	hooks := append([]EndHook(nil), m.hooks...)
	m.mu.Unlock()

	if !ok {
		return errors.NotFound("session")
	}
	for _, h := range hooks {
		h(ctx, s)
	}
	m.log.Info("session closed", zap.String("session_id", id))
	return nil
}

// Sweep destroys expired sessions and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.Expired(now) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	hooks := append([]EndHook(nil), m.hooks...)
	m.mu.Unlock()

	for _, s := range expired {
		for _, h := range hooks {
			h(ctx, s)
		}
	}
	if len(expired) > 0 {
		m.log.Info("expired sessions swept", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps expired sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

type ctxKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	if !ok || s == nil {
		return nil, fmt.Errorf("no session in context")
	}
	return s, nil
}
