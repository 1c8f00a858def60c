package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"khwaaish/pkg/config"
	"khwaaish/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrUnknownToken       = errors.New("auth: unknown token")
	ErrTokenExpired       = errors.New("auth: token expired")
)

// State is the login status handed to surfaces. The zero value is logged out.
type State struct {
	Email    string    `json:"email,omitempty"`
	LoggedIn bool      `json:"logged_in"`
	Since    time.Time `json:"since,omitempty"`
}

func (s State) Authenticated() bool {
	return s.LoggedIn
}

// Authenticator checks credentials. The static gate is a stand-in for a real
// identity service.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (State, error)
}

type StaticAuthenticator struct {
	email    string
	password string
}

func NewStatic(email, password string) *StaticAuthenticator {
	return &StaticAuthenticator{email: strings.TrimSpace(email), password: password}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, email, password string) (State, error) {
	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(email))), []byte(strings.ToLower(a.email))) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !emailOK || !passOK {
		return State{}, ErrInvalidCredentials
	}
	return State{Email: a.email, LoggedIn: true, Since: time.Now()}, nil
}

// OpenAuthenticator lets anyone in. It is used when no credentials are
// configured.
type OpenAuthenticator struct{}

func (OpenAuthenticator) Authenticate(_ context.Context, email, _ string) (State, error) {
	return State{Email: strings.TrimSpace(email), LoggedIn: true, Since: time.Now()}, nil
}

func FromConfig(cfg *config.Config) Authenticator {
	if cfg.Auth.Email == "" && cfg.Auth.Password == "" {
		logger.WarnC("auth", "No login credentials configured; login gate is open")
		return OpenAuthenticator{}
	}
	return NewStatic(cfg.Auth.Email, cfg.Auth.Password)
}

// Tokens maps gateway bearer tokens to auth state. Tokens expire after ttl;
// nothing is persisted.
type Tokens struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]tokenEntry
}

type tokenEntry struct {
	state   State
	expires time.Time
}

func NewTokens(ttl time.Duration) *Tokens {
	return &Tokens{ttl: ttl, now: time.Now, entries: make(map[string]tokenEntry)}
}

func (t *Tokens) Issue(state State) string {
	token := uuid.NewString()
	t.mu.Lock()
	t.entries[token] = tokenEntry{state: state, expires: t.now().Add(t.ttl)}
	t.mu.Unlock()
	return token
}

func (t *Tokens) Lookup(token string) (State, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[token]
	if !ok {
		return State{}, ErrUnknownToken
	}
	if !t.now().Before(e.expires) {
		return State{}, ErrTokenExpired
	}
	return e.state, nil
}

func (t *Tokens) Revoke(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, token)
}

// Prune drops expired tokens and returns how many went.
func (t *Tokens) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	removed := 0
	for token, e := range t.entries {
		if !now.Before(e.expires) {
			delete(t.entries, token)
			removed++
		}
	}
	return removed
}
