package facility

import "errors"

var (
	ErrNotFound     = errors.New("facility: not found")
	ErrInvalidInput = errors.New("facility: invalid input")
	ErrForbidden    = errors.New("facility: forbidden")
)
