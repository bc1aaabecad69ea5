package httpapi

import (
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes controls the maximum allowed request body size for POST /api/chat.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// chatTimeout bounds a whole chat request, waiting time included.
// Zero means no additional timeout beyond server/connection timeouts.
var chatTimeout time.Duration

// SetChatTimeoutSeconds sets the chat timeout in seconds (0 disables).
func SetChatTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	chatTimeout = time.Duration(sec) * time.Second
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// chatLimiter throttles /api/chat when set.
var chatLimiter *rate.Limiter

// SetRateLimit enables a token bucket on /api/chat. rps <= 0 disables it.
func SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		chatLimiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	chatLimiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// staticDir is served at / when non-empty.
var staticDir string

// SetStaticDir sets the directory of the browser client.
func SetStaticDir(dir string) { staticDir = dir }
