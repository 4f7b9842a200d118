package auth

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryUsers(), newTestIssuer(t), WithHasher(NewHasher(bcrypt.MinCost)))
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	pair, user, err := svc.Register(ctx, Registration{Username: "alice", Email: " Alice@Example.com ", Password: "pw"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == 0 || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("missing tokens: %+v", pair)
	}

	_, loggedIn, err := svc.Login(ctx, "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Fatalf("login returned user %d, want %d", loggedIn.ID, user.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, _, err := svc.Register(ctx, Registration{Username: "a", Email: "a@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, _, err := svc.Register(ctx, Registration{Username: "b", Email: "A@example.com", Password: "pw"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := newTestService(t)
	cases := []Registration{
		{Email: "a@example.com", Password: "pw"},
		{Username: "a", Password: "pw"},
		{Username: "a", Email: "a@example.com"},
		{Username: "a", Email: "not-an-email", Password: "pw"},
	}
	for _, reg := range cases {
		if _, _, err := svc.Register(context.Background(), reg); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Register(%+v) err = %v, want ErrInvalidInput", reg, err)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, _, err := svc.Register(ctx, Registration{Username: "a", Email: "a@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, tc := range []struct{ email, password string }{
		{"a@example.com", "wrong"},
		{"missing@example.com", "pw"},
		{"", ""},
	} {
		if _, _, err := svc.Login(ctx, tc.email, tc.password); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Login(%q) err = %v, want ErrUnauthorized", tc.email, err)
		}
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	pair, user, err := svc.Register(ctx, Registration{Username: "a", Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	next, refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.ID != user.ID || next.AccessToken == "" {
		t.Fatalf("unexpected refresh result: %+v %+v", next, refreshed)
	}
	if _, _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted for refresh: %v", err)
	}
}

func TestAuthenticateUsesStoredAdminFlag(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUsers()
	issuer := newTestIssuer(t)
	svc := NewService(users, issuer, WithHasher(NewHasher(bcrypt.MinCost)))

	stored := &User{Username: "root", Email: "root@example.com", IsAdmin: false}
	if err := users.CreateUser(ctx, stored); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	// A token claiming admin for a non-admin user.
	forged, err := issuer.IssuePair(&User{ID: stored.ID, IsAdmin: true})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	user, err := svc.Authenticate(ctx, forged.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.IsAdmin {
		t.Fatal("admin flag must come from the store")
	}

	ghost, err := issuer.IssuePair(&User{ID: 999})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := svc.Authenticate(ctx, ghost.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown user accepted: %v", err)
	}
}

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify(hash, "secret") {
		t.Fatal("expected match")
	}
	if h.Verify(hash, "other") || h.Verify("", "secret") {
		t.Fatal("unexpected match")
	}
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestContextIdentity(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), Identity{ID: 5})
	got := IdentityFromContext(ctx)
	if got == nil || got.ID != 5 {
		t.Fatalf("IdentityFromContext = %+v", got)
	}
	got.ID = 6
	if IdentityFromContext(ctx).ID != 5 {
		t.Fatal("context identity must not be mutable through the returned pointer")
	}
	if IdentityFromContext(context.Background()) != nil {
		t.Fatal("expected nil identity")
	}
}
