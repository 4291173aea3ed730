// Package apperr defines the error taxonomy shared by the authentication
// flow and the HTTP layer, plus its JSON wire shape.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrProviderNotConfigured = errors.New("identity provider is not configured")
	ErrMissingParameters     = errors.New("missing required parameters")
	ErrInvalidOrExpiredState = errors.New("invalid or expired state")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrInvalidIdentityToken  = errors.New("invalid identity token")
	ErrSessionNotFound       = errors.New("session not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrUpstreamUnavailable   = errors.New("upstream service unavailable")
)

// Error is the JSON error body returned to clients.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// codes maps sentinel errors to their wire code and HTTP status.
var codes = []struct {
	err    error
	code   string
	status int
}{
	{ErrProviderNotConfigured, "provider_not_configured", http.StatusServiceUnavailable},
	{ErrMissingParameters, "missing_parameters", http.StatusBadRequest},
	{ErrInvalidOrExpiredState, "invalid_or_expired_state", http.StatusBadRequest},
	{ErrTokenExchangeFailed, "token_exchange_failed", http.StatusBadGateway},
	{ErrInvalidIdentityToken, "invalid_identity_token", http.StatusUnauthorized},
	{ErrSessionNotFound, "session_not_found", http.StatusUnauthorized},
	{ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
	{ErrUpstreamUnavailable, "upstream_unavailable", http.StatusBadGateway},
}

// Wire translates err into an HTTP status and a JSON body. Unknown errors
// map to a generic 500 without leaking internal detail.
func Wire(err error) (int, *Error) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.status, &Error{Code: c.code, Description: c.err.Error()}
		}
	}
	return http.StatusInternalServerError, &Error{Code: "server_error", Description: "internal server error"}
}
