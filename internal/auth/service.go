package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Registration is the payload of POST /register.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r Registration) normalize() (Registration, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Username == "" || r.Email == "" || r.Password == "" {
		return r, fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return r, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return r, nil
}

// Service registers users, checks credentials and issues tokens for the API.
type Service struct {
	users  UserStore
	issuer *TokenIssuer
	hasher Hasher
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithHasher overrides the password hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) { s.hasher = h }
}

// NewService constructs a Service over users, signing with issuer.
func NewService(users UserStore, issuer *TokenIssuer, opts ...ServiceOption) *Service {
	s := &Service{users: users, issuer: issuer, hasher: NewHasher(0)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user and logs them in.
func (s *Service) Register(ctx context.Context, reg Registration) (TokenPair, *User, error) {
	reg, err := reg.normalize()
	if err != nil {
		return TokenPair{}, nil, err
	}
	if _, err := s.users.FindUserByEmail(ctx, reg.Email); err == nil {
		return TokenPair{}, nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return TokenPair{}, nil, err
	}
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return TokenPair{}, nil, err
	}
	user := &User{Username: reg.Username, Email: reg.Email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Login checks credentials and issues a fresh pair. Any mismatch is ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthorized
	}
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrUnauthorized
		}
		return TokenPair{}, nil, err
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return TokenPair{}, nil, ErrUnauthorized
	}
	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	claims, err := s.issuer.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	user, err := s.users.FindUser(ctx, *claims.UserID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Authenticate validates an access token and loads its user. The admin flag
// is taken from the stored user, never from the token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	claims, err := s.issuer.Verify(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.FindUser(ctx, *claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}
