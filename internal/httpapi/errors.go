package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatd/internal/bridge"
	"chatd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps a Stream error to the status and message sent when nothing
// has been streamed yet.
func statusFor(err error) (int, string) {
	var he HTTPError
	switch {
	case bridge.IsTooBusy(err):
		return http.StatusTooManyRequests, err.Error()
	case bridge.IsQueueClosed(err):
		return http.StatusServiceUnavailable, "server shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "chat timed out"
	case errors.As(err, &he):
		return he.StatusCode(), he.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
