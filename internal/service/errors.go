// Package service holds the conversation resolver and the messaging service.
package service

import "errors"

// Domain error taxonomy. Callers match with errors.Is; messages are wrapped
// with human readable context.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)
