// Package pagination implements the page/limit contract shared by message
// history and notification listings.
package pagination

import (
	"strconv"
	"strings"
)

const (
	// DefaultPage is used when page is missing or not a positive integer.
	DefaultPage = 1
	// DefaultLimit is used when limit is missing or not a positive integer.
	DefaultLimit = 10
)

// Request is a normalized page request.
type Request struct {
	Page  int
	Limit int
}

// Parse coerces raw query values, silently falling back to defaults.
func Parse(page, limit string) Request {
	return Request{
		Page:  positiveOr(page, DefaultPage),
		Limit: positiveOr(limit, DefaultLimit),
	}
}

// Offset is the number of items to skip.
func (r Request) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Page is the listing envelope returned to clients.
type Page[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Data       []T `json:"data"`
}

// NewPage builds the envelope; totalPages is ceil(total/limit).
func NewPage[T any](req Request, total int, data []T) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if req.Limit > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	return Page[T]{
		Page:       req.Page,
		PerPage:    req.Limit,
		TotalItems: total,
		TotalPages: pages,
		Data:       data,
	}
}

func positiveOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
