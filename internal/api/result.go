// Package api defines the tagged JSON results returned by every HTTP route.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/reelhouse/backend/internal/logging"
)

// Kind classifies a failed request.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindTokenInvalid       Kind = "token_invalid"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindBadRequest         Kind = "bad_request"
	KindConflict           Kind = "conflict"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindRateLimited        Kind = "rate_limited"
	KindInternal           Kind = "internal"
)

// Status maps a failure kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindUnauthenticated, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindTokenInvalid, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Result is embedded in every successful JSON payload.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK returns a successful Result carrying message.
func OK(message string) Result {
	return Result{Success: true, Message: message}
}

// Failure is the body of every failed JSON response.
type Failure struct {
	Success bool   `json:"success"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Fail writes a Failure with the status derived from kind.
func Fail(ctx context.Context, w http.ResponseWriter, kind Kind, message string) {
	WriteJSON(ctx, w, kind.Status(), Failure{Kind: kind, Message: message})
}

// WriteJSON encodes payload with the given status and logs client and server errors.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
