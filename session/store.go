// Package session holds the current client session and keeps its durable
// copy in sync. One Store is created per application root.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/folio/core"
	"github.com/layer-3/folio/ports"
)

// Key is the storage key of the persisted session
const Key = "folio.session"

// Reasons passed to Clear
const (
	ReasonLogout           = "logout"
	ReasonRefreshExhausted = "refresh_exhausted"
)

// Store holds the session of the current client
type Store struct {
	storage   ports.Storage
	inspector ports.TokenInspector
	publisher ports.EventPublisher

	// writeMu serializes mutations together with their durable write
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *core.Session
	onClear []func()
	// onSwitch runs when Set installs a different identity
	onSwitch []func()
}

// Option configures a Store
type Option func(*Store)

// WithPublisher publishes lifecycle events on every change
func WithPublisher(publisher ports.EventPublisher) Option {
	return func(s *Store) { s.publisher = publisher }
}

// WithInspector reads access token expiry when tokens are stored
func WithInspector(inspector ports.TokenInspector) Option {
	return func(s *Store) { s.inspector = inspector }
}

// NewStore creates a new session store backed by storage
func NewStore(storage ports.Storage, opts ...Option) *Store {
	s := &Store{storage: storage}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init restores the persisted session. A corrupt entry is discarded.
func (s *Store) Init(ctx context.Context) error {
	raw, err := s.storage.Get(ctx, Key)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	var restored core.Session
	if err := json.Unmarshal([]byte(raw), &restored); err != nil || restored.Validate() != nil {
		slogctx.Warn(ctx, "Discarding unreadable persisted session")
		if err := s.storage.Delete(ctx, Key); err != nil {
			return fmt.Errorf("failed to discard session: %w", err)
		}
		return nil
	}

	s.mu.Lock()
	s.current = &restored
	s.mu.Unlock()

	slogctx.Debug(ctx, "Restored session", "origin", restored.Origin)
	return nil
}

// Close drops the in-memory session and hooks. The durable copy is kept.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.onClear = nil
	s.onSwitch = nil
	return nil
}

// OnClear registers fn to run after the session is cleared
func (s *Store) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onClear = append(s.onClear, fn)
}

// OnIdentityChange registers fn to run after Set replaces the session of one
// identity with another, or installs one where there was none
func (s *Store) OnIdentityChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onSwitch = append(s.onSwitch, fn)
}

// Current returns a copy of the current session
func (s *Store) Current() (core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return core.Session{}, false
	}
	return clone(*s.current), true
}

// BearerToken returns the access token to send over the wire.
// Fallback sessions never yield a token.
func (s *Store) BearerToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil || s.current.IsFallback() {
		return ""
	}
	return s.current.AccessToken
}

// RefreshToken returns the stored refresh token of a server session
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil || s.current.IsFallback() {
		return ""
	}
	return s.current.RefreshToken
}

// Set replaces the session after a login
func (s *Store) Set(ctx context.Context, sess core.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	sess = clone(sess)
	s.stampExpiry(&sess)

	s.writeMu.Lock()
	if err := s.persist(ctx, sess); err != nil {
		s.writeMu.Unlock()
		return err
	}
	s.mu.Lock()
	prev := s.current
	s.current = &sess
	var hooks []func()
	if prev == nil || identityID(*prev) != identityID(sess) {
		hooks = append(hooks, s.onSwitch...)
	}
	s.mu.Unlock()
	s.writeMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	s.publish(ctx, ports.SessionEvent{
		Type:       ports.SessionLogin,
		IdentityID: identityID(sess),
		Origin:     sess.Origin,
	})
	return nil
}

// UpdateTokens swaps the tokens of the current server session in place.
// An empty refresh token keeps the previous one.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return core.ErrInvalidSession
	}

	s.writeMu.Lock()
	s.mu.RLock()
	if s.current == nil || s.current.IsFallback() {
		s.mu.RUnlock()
		s.writeMu.Unlock()
		return core.ErrNotAuthenticated
	}
	next := clone(*s.current)
	s.mu.RUnlock()

	next.AccessToken = accessToken
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	s.stampExpiry(&next)

	if err := s.persist(ctx, next); err != nil {
		s.writeMu.Unlock()
		return err
	}
	s.mu.Lock()
	s.current = &next
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.publish(ctx, ports.SessionEvent{
		Type:       ports.SessionRefreshed,
		IdentityID: identityID(next),
		Origin:     next.Origin,
	})
	return nil
}

// Clear destroys the session and its durable copy. Clearing an absent
// session is a no-op apart from removing the durable entry.
func (s *Store) Clear(ctx context.Context, reason string) error {
	s.writeMu.Lock()
	s.mu.Lock()
	prev := s.current
	s.current = nil
	hooks := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	err := s.storage.Delete(ctx, Key)
	s.writeMu.Unlock()

	if prev == nil {
		return err
	}

	for _, fn := range hooks {
		fn()
	}
	s.publish(ctx, ports.SessionEvent{
		Type:       ports.SessionCleared,
		IdentityID: identityID(*prev),
		Origin:     prev.Origin,
		Reason:     reason,
	})

	if err != nil {
		return fmt.Errorf("failed to remove persisted session: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, sess core.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.storage.Set(ctx, Key, string(payload)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (s *Store) stampExpiry(sess *core.Session) {
	if s.inspector == nil || sess.IsFallback() {
		return
	}
	if exp, ok := s.inspector.Expiry(sess.AccessToken); ok {
		sess.AccessExpiry = exp
	}
}

func (s *Store) publish(ctx context.Context, event ports.SessionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSession(ctx, event); err != nil {
		// the session change already happened
		slogctx.Warn(ctx, "Failed to publish session event", "type", event.Type, "error", err)
	}
}

func clone(sess core.Session) core.Session {
	if sess.Identity != nil {
		id := *sess.Identity
		id.LinkedAddresses = append([]core.LinkedAddress(nil), sess.Identity.LinkedAddresses...)
		sess.Identity = &id
	}
	return sess
}

func identityID(sess core.Session) string {
	if sess.Identity == nil {
		return ""
	}
	return sess.Identity.ID
}
