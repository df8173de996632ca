package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBackendUnavailable = errors.New("search backend unavailable")
	ErrUnsupportedEngine  = errors.New("engine does not provide structured results")
	// ErrMalformedResponse also matches ErrBackendUnavailable.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrBackendUnavailable)
	ErrUnknownCategory   = errors.New("unknown category")
	ErrEmptyQuery        = errors.New("query is required")
)
