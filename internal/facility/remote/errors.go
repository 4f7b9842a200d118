package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
)

var (
	// ErrUnauthorized is returned for any 401 from the API.
	ErrUnauthorized = errors.New("remote: unauthorized")
	// ErrMalformedResponse is returned when a response body does not match the expected schema.
	ErrMalformedResponse = errors.New("remote: malformed response")
)

// APIError is a non-2xx response. Detail carries the server's message, if any.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
}

// Unwrap exposes the sentinel matching the status so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	return mapAPIError(e.Status, e.Detail)
}

func mapAPIError(status int, detail string) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return facility.ErrForbidden
	case http.StatusNotFound:
		return facility.ErrNotFound
	case http.StatusConflict:
		return auth.ErrAlreadyExists
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(detail), "already registered") {
			return auth.ErrAlreadyExists
		}
		return facility.ErrInvalidInput
	}
	return nil
}

// DetailOf returns the server-provided message carried by err, if any.
func DetailOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

const maxErrorBody = 64 << 10

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return apiErr
	}
	var detail string
	if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil {
		apiErr.Detail = detail
	} else if payload.Message != "" {
		apiErr.Detail = payload.Message
	}
	return apiErr
}
