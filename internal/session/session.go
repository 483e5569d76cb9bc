package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/prefs"
)

var ErrNotAuthenticated = errors.New("no active session")

// State is published on every authentication edge.
type State struct {
	Authenticated bool `json:"authenticated"`
}

// Session holds the bearer token and drives whatever must follow the
// authenticated/unauthenticated edges, such as the broker connection.
type Session struct {
	store     prefs.Store
	publisher bus.Publisher
	logger    *slog.Logger

	mu        sync.RWMutex
	token     string
	listeners []func(authenticated bool)
}

func New(store prefs.Store, publisher bus.Publisher, logger *slog.Logger) *Session {
	if publisher == nil {
		publisher = bus.Nop{}
	}
	return &Session{store: store, publisher: publisher, logger: logger}
}

// OnChange registers fn for future authentication edges.
func (s *Session) OnChange(fn func(authenticated bool)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Restore reactivates a persisted token, falling back to bootstrap.
func (s *Session) Restore(ctx context.Context, bootstrap string) error {
	var stored string
	if prefs.LoadJSON(ctx, s.store, prefs.KeyAuthToken, &stored, s.logger) && strings.TrimSpace(stored) != "" {
		s.apply(stored)
		s.logger.Info("session restored from local store")
		return nil
	}
	if strings.TrimSpace(bootstrap) == "" {
		return nil
	}
	return s.Login(ctx, bootstrap)
}

func (s *Session) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("login: %w", ErrNotAuthenticated)
	}
	if err := prefs.SaveJSON(ctx, s.store, prefs.KeyAuthToken, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	s.apply(token)
	return nil
}

// Logout clears the token. Calling it without a session is a no-op.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Remove(ctx, prefs.KeyAuthToken); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	s.apply("")
	return nil
}

// Token implements backend.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Require returns ErrNotAuthenticated when no token is held.
func (s *Session) Require() error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

func (s *Session) apply(token string) {
	s.mu.Lock()
	was := s.token != ""
	s.token = token
	now := s.token != ""
	listeners := append([]func(bool){}, s.listeners...)
	s.mu.Unlock()

	if was == now {
		return
	}
	s.logger.Info("session changed", "authenticated", now)
	s.publisher.Publish(bus.TopicSession, State{Authenticated: now})
	for _, fn := range listeners {
		fn(now)
	}
}
