// Package httpapi serves the provider operations, sidebar menu and display
// preferences as a JSON REST API with a websocket event stream.
package httpapi

import (
	"errors"
	"net/http"

	"finscope/internal/domain"
	"finscope/internal/prefs"
)

// Envelope wraps every JSON response body.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// PreferencesResponse is the body of GET/PUT /api/preferences.
type PreferencesResponse struct {
	prefs.Preferences
	Resolved prefs.Theme `json:"resolved_theme"`
}

// PreferencesUpdate is the body of PUT /api/preferences; nil fields are
// left unchanged.
type PreferencesUpdate struct {
	Theme            *string `json:"theme,omitempty"`
	SidebarCollapsed *bool   `json:"sidebar_collapsed,omitempty"`
}

// EventMessage is one frame on /api/events.
type EventMessage struct {
	Type string      `json:"type"`
	Data prefs.Event `json:"data"`
}

// Health is the body of /healthz.
type Health struct {
	Status string `json:"status"`
}

// StatusFor maps a provider error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFor is the inverse of StatusFor: it returns the sentinel a status
// code stands for, or nil for codes without one.
func ErrorFor(status int) error {
	switch status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusServiceUnavailable:
		return domain.ErrUnavailable
	}
	return nil
}
