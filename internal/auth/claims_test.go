package auth

import (
	"encoding/base64"
	"errors"
	"testing"
)

func tokenWithPayload(payload string) string {
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func TestDecodeClaimsRejectsMalformedTokens(t *testing.T) {
	cases := map[string]string{
		"no delimiter":     "abc",
		"empty":            "",
		"two segments":     "a.b",
		"four segments":    "a.b.c.d",
		"bad base64":       "a.!!!.c",
		"not json":         tokenWithPayload("not json"),
		"json array":       tokenWithPayload(`[1,2,3]`),
		"string subject":   tokenWithPayload(`{"user_id":"5"}`),
		"empty payload":    "a..c",
		"truncated object": tokenWithPayload(`{"user_id":5`),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			claims, err := DecodeClaims(token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("DecodeClaims(%q) err = %v, want ErrInvalidToken", token, err)
			}
			if claims != nil {
				t.Fatalf("expected nil claims, got %+v", claims)
			}
		})
	}
}

func TestDecodeClaimsReadsPayload(t *testing.T) {
	claims, err := DecodeClaims(tokenWithPayload(`{"user_id":5,"is_admin":true,"email":"a@b.c","token_type":"access"}`))
	if err != nil {
		t.Fatalf("DecodeClaims: %v", err)
	}
	identity, ok := claims.Identity()
	if !ok {
		t.Fatal("expected identity")
	}
	if identity != (Identity{ID: 5, IsAdmin: true, Email: "a@b.c"}) {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestDecodeClaimsToleratesPadding(t *testing.T) {
	payload := base64.URLEncoding.EncodeToString([]byte(`{"user_id":12}`))
	claims, err := DecodeClaims("h." + payload + ".s")
	if err != nil {
		t.Fatalf("DecodeClaims: %v", err)
	}
	if id, ok := claims.Identity(); !ok || id.ID != 12 {
		t.Fatalf("unexpected identity: %+v ok=%v", id, ok)
	}
}

func TestClaimsWithoutSubjectHaveNoIdentity(t *testing.T) {
	for _, payload := range []string{`{}`, `{"user_id":null,"is_admin":true}`, `null`, `{"user_id":0,"is_admin":true}`, `{"user_id":-3}`} {
		claims, err := DecodeClaims(tokenWithPayload(payload))
		if err != nil {
			t.Fatalf("DecodeClaims(%s): %v", payload, err)
		}
		if _, ok := claims.Identity(); ok {
			t.Fatalf("payload %s should not yield an identity", payload)
		}
		if IdentityFromToken(tokenWithPayload(payload)) != nil {
			t.Fatalf("IdentityFromToken(%s) should be nil", payload)
		}
	}
}

func TestIdentityFromTokenDefaultsAdminToFalse(t *testing.T) {
	identity := IdentityFromToken(tokenWithPayload(`{"user_id":3}`))
	if identity == nil {
		t.Fatal("expected identity")
	}
	if identity.IsAdmin || identity.Email != "" {
		t.Fatalf("unexpected optional claims: %+v", identity)
	}
}
