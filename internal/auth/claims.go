package auth

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the payload segment of a firewatch token. UserID is the subject;
// IsAdmin and Email are optional and only present on access tokens.
type Claims struct {
	UserID    *int64 `json:"user_id,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the identity described by the claims. It reports false
// when the subject is missing or not a positive id.
func (c *Claims) Identity() (Identity, bool) {
	if c == nil || c.UserID == nil || *c.UserID <= 0 {
		return Identity{}, false
	}
	return Identity{ID: *c.UserID, IsAdmin: c.IsAdmin, Email: c.Email}, true
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeClaims reads the payload of a three-segment token without verifying
// its signature. Verification belongs to the API; the result is only fit for
// deciding what to show. Any structural or encoding problem yields ErrInvalidToken.
func DecodeClaims(token string) (*Claims, error) {
	segments := strings.Split(strings.TrimSpace(token), ".")
	if len(segments) != 3 {
		return nil, ErrInvalidToken
	}
	payload, err := segmentParser.DecodeSegment(segments[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// IdentityFromToken decodes token and returns its identity, or nil when the
// token is malformed or carries no subject.
func IdentityFromToken(token string) *Identity {
	claims, err := DecodeClaims(token)
	if err != nil {
		return nil
	}
	identity, ok := claims.Identity()
	if !ok {
		return nil
	}
	return &identity
}
