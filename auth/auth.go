// Package auth verifies administrator credentials and issues session tokens
// for the mutating API routes.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Verifier checks credentials. Implementations must not reveal which part was wrong.
type Verifier interface {
	Verify(ctx context.Context, c Credentials) (string, error)
}

// Static accepts exactly one username and password pair.
type Static struct {
	Username string
	Password string
}

func (s Static) Verify(_ context.Context, c Credentials) (string, error) {
	if s.Password == "" {
		return "", ErrInvalidCredentials
	}
	userOK := equal(strings.TrimSpace(c.Username), s.Username)
	passOK := equal(c.Password, s.Password)
	if !userOK || !passOK {
		return "", ErrInvalidCredentials
	}
	return s.Username, nil
}

// equal compares digests so the comparison time does not depend on length.
func equal(a, b string) bool {
	ha, hb := sha256.Sum256([]byte(a)), sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// Sessions holds issued tokens until they expire or are pushed out by newer ones.
type Sessions struct {
	verifier Verifier
	ttl      time.Duration
	now      func() time.Time
	cache    *expirable.LRU[string, Session]
}

func NewSessions(v Verifier, size int, ttl time.Duration) *Sessions {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{
		verifier: v,
		ttl:      ttl,
		now:      time.Now,
		cache:    expirable.NewLRU[string, Session](size, nil, ttl),
	}
}

// Login verifies c and issues a new session.
func (s *Sessions) Login(ctx context.Context, c Credentials) (Session, error) {
	user, err := s.verifier.Verify(ctx, c)
	if err != nil {
		return Session{}, err
	}
	sess := Session{Token: uuid.NewString(), Username: user, ExpiresAt: s.now().Add(s.ttl)}
	s.cache.Add(sess.Token, sess)
	return sess, nil
}

// Lookup returns the live session for token.
func (s *Sessions) Lookup(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	sess, ok := s.cache.Get(token)
	if !ok || !s.now().Before(sess.ExpiresAt) {
		return Session{}, false
	}
	return sess, true
}

func (s *Sessions) Logout(token string) bool { return s.cache.Remove(token) }

func (s *Sessions) Len() int { return s.cache.Len() }
