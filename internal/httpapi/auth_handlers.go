package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"firewatch.org/internal/audit"
	"firewatch.org/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid bool           `json:"valid"`
	User  *auth.Identity `json:"user,omitempty"`
}

// readCredentials accepts a JSON body or an OAuth2 password form, where the
// email travels as "username".
func readCredentials(r *http.Request) (tokenRequest, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return tokenRequest{}, err
		}
		email := r.PostForm.Get("email")
		if email == "" {
			email = r.PostForm.Get("username")
		}
		return tokenRequest{Email: email, Password: r.PostForm.Get("password")}, nil
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		return tokenRequest{}, err
	}
	return req, nil
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	req, err := readCredentials(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			_ = audit.LogEvent(r.Context(), "auth.login.rejected", map[string]any{
				"email": strings.ToLower(strings.TrimSpace(req.Email)),
			})
			unauthorized(w, r, "Incorrect credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "Token creation failed")
		return
	}

	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), user.Identity()), "auth.token.issued", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := decodeJSON(r, &reg); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.auth.Register(r.Context(), reg)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusBadRequest, "Email already registered")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, reason(err, auth.ErrInvalidInput))
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "Registration failed")
		return
	}

	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), user.Identity()), "auth.user.registered", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.auth.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrNotFound) {
			unauthorized(w, r, "Invalid refresh token")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "Token creation failed")
		return
	}

	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), user.Identity()), "auth.token.refreshed", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, pair)
}

// handleValidate answers {valid:false} for any token that does not resolve to
// a live user, rather than an error status.
func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.Authenticate(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeJSON(w, http.StatusOK, validateResponse{Valid: false})
			return
		}
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	identity := user.Identity()
	writeJSON(w, http.StatusOK, validateResponse{Valid: true, User: &identity})
}
