package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"firewatch.org/internal/auth"
)

// ErrClosed is returned by a Store after Close.
var ErrClosed = errors.New("session: store closed")

// Store is the single owned session slot: the token pair plus the identity
// decoded from the access token. The identity is present iff the stored access
// token decodes to claims with a subject.
type Store struct {
	mu       sync.RWMutex
	storage  Storage
	access   string
	refresh  string
	identity *auth.Identity
	closed   bool
}

// NewStore returns an empty store over storage. Call Load to hydrate it.
func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// Open returns a store hydrated from storage.
func Open(ctx context.Context, storage Storage) (*Store, error) {
	s := NewStore(storage)
	if err := s.Load(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// Load reads the token pair from storage. A stored access token without a
// usable identity is erased. On error the store is left empty.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.reset()

	access, _, err := s.storage.Get(ctx, KeyAccessToken)
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}
	refresh, _, err := s.storage.Get(ctx, KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}
	if access == "" && refresh == "" {
		return nil
	}
	identity := auth.IdentityFromToken(access)
	if identity == nil {
		return s.erase(ctx)
	}
	s.access, s.refresh, s.identity = access, refresh, identity
	return nil
}

// Save persists pair and recomputes the identity. If the access token yields
// no identity both keys are erased again and auth.ErrInvalidToken is returned.
// A storage failure part way through also erases both keys.
func (s *Store) Save(ctx context.Context, pair auth.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.write(ctx, pair); err != nil {
		// A half-written pair must not survive as a session.
		_ = s.erase(ctx)
		return fmt.Errorf("session: save: %w", err)
	}
	identity := auth.IdentityFromToken(pair.AccessToken)
	if identity == nil {
		if err := s.erase(ctx); err != nil {
			return err
		}
		return auth.ErrInvalidToken
	}
	s.access, s.refresh, s.identity = pair.AccessToken, pair.RefreshToken, identity
	return nil
}

func (s *Store) write(ctx context.Context, pair auth.TokenPair) error {
	if err := s.storage.Set(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return err
	}
	return s.storage.Set(ctx, KeyRefreshToken, pair.RefreshToken)
}

// Clear erases both keys and drops the identity. It is idempotent.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.erase(ctx)
}

// erase drops memory state first so the identity is absent even when storage fails.
func (s *Store) erase(ctx context.Context) error {
	s.reset()
	if err := s.storage.Delete(ctx, KeyAccessToken, KeyRefreshToken); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func (s *Store) reset() {
	s.access, s.refresh, s.identity = "", "", nil
}

// CurrentIdentity returns a copy of the cached identity, or nil.
func (s *Store) CurrentIdentity() *auth.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	out := *s.identity
	return &out
}

// Tokens returns the stored pair.
func (s *Store) Tokens() auth.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return auth.TokenPair{AccessToken: s.access, RefreshToken: s.refresh}
}

// AccessToken returns the access token for outgoing requests, or "" without a session.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// Close ends the store's lifecycle and closes the storage if it holds resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.reset()
	if c, ok := s.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
