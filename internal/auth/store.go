package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// User is an account able to own buildings.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity returns the identity a token issued for u carries.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, IsAdmin: u.IsAdmin, Email: u.Email}
}

// UserStore persists users.
type UserStore interface {
	// CreateUser assigns u.ID and u.CreatedAt. It returns ErrAlreadyExists
	// when the email or username is taken.
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id int64) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

var _ UserStore = (*MemoryUsers)(nil)

// MemoryUsers implements UserStore in process memory.
type MemoryUsers struct {
	mu    sync.RWMutex
	next  int64
	users map[int64]*User
}

// NewMemoryUsers returns an empty in-memory user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[int64]*User)}
}

func (s *MemoryUsers) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) || existing.Username == u.Username {
			return ErrAlreadyExists
		}
	}
	s.next++
	u.ID = s.next
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (s *MemoryUsers) FindUser(_ context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryUsers) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
