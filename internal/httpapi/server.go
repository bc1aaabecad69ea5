package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatd/internal/bridge"
	"chatd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Stream(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) error
	Status() types.StatusResponse
	Generation(id string) (types.GenerationSummary, bool)
	Ready() bool
}

// GenerationHeader carries the server-assigned generation ID on chat responses.
const GenerationHeader = "X-Generation-ID"

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{GenerationHeader},
		}))
	}

	// Compression for JSON endpoints only; chat responses are streamed.
	compress := middleware.Compress(5)

	r.Route("/api", func(r chi.Router) {
		r.With(rateLimit).Get("/chat", chatGet(svc))
		r.With(rateLimit).Post("/chat", chatPost(svc))
		r.With(compress).Get("/generations/{id}", generation(svc))
	})

	r.With(compress).Get("/status", status(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}
	return r
}

// chatGet godoc
// @Summary      Stream a chat completion
// @Description  Streams the generated text for prompt as raw chunks. The body is not JSON despite the content type.
// @Tags         chat
// @Produce      json
// @Param        prompt  query     string  true  "Prompt text (may be empty)"
// @Success      200     {string}  string  "streamed text"
// @Header       200     {string}  X-Generation-ID  "generation id"
// @Failure      400     {object}  types.ErrorResponse
// @Failure      429     {object}  types.ErrorResponse
// @Failure      503     {object}  types.ErrorResponse
// @Failure      504     {object}  types.ErrorResponse
// @Router       /api/chat [get]
func chatGet(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has("prompt") {
			writeJSONError(w, http.StatusBadRequest, "missing prompt parameter")
			return
		}
		serveChat(svc, w, r, q.Get("prompt"))
	}
}

// chatPost godoc
// @Summary      Stream a chat completion
// @Description  Same as GET /api/chat with the prompt in a JSON body.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Param        body  body      types.ChatRequest  true  "Chat request"
// @Success      200   {string}  string  "streamed text"
// @Failure      400   {object}  types.ErrorResponse
// @Failure      415   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /api/chat [post]
func chatPost(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// Oversized bodies land here too; they get the same 400.
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		serveChat(svc, w, r, req.Prompt)
	}
}

// serveChat streams one generation. Errors get a status only while nothing
// has been written; afterwards the stream just ends. Engine failures never
// get an error status.
func serveChat(svc Service, w http.ResponseWriter, r *http.Request, prompt string) {
	id := uuid.NewString()
	lvl := requestLogLevel(r)
	start := time.Now()

	sw := &streamWriter{w: w}
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	writer := io.Writer(sw)
	var echo *loggingLineWriter
	if lvl >= LevelDebug {
		echo = &loggingLineWriter{id: id}
		writer = io.MultiWriter(sw, echo)
		defer echo.Close()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(GenerationHeader, id)
	logChat(r, lvl, "chat start", 0, time.Time{}, nil)

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if chatTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, chatTimeout)
		defer tcancel()
	}

	err := svc.Stream(ctx, types.ChatRequest{ID: id, Prompt: prompt}, writer, flush)
	switch {
	case err == nil:
		logChat(r, lvl, "chat end", http.StatusOK, start, nil)
	case r.Context().Err() != nil, sw.wrote && bridge.IsClientDisconnected(err):
		// Client went away; not a server fault.
		if zlog != nil {
			zlog.Debug().Str("generation_id", id).Err(err).Msg("client disconnected")
		}
	case sw.wrote, bridge.IsGenerationError(err):
		// A failed generation is just a stream that ends early, even before
		// its first fragment.
		logChat(r, lvl, "chat ended early", http.StatusOK, start, err)
		if zlog != nil {
			zlog.Warn().Str("generation_id", id).Err(err).Msg("generation failed")
		}
	case serverBaseCtx.Err() != nil:
		writeJSONError(w, http.StatusServiceUnavailable, "server shutting down")
		logChat(r, lvl, "chat end", http.StatusServiceUnavailable, start, err)
	default:
		code, msg := statusFor(err)
		if code == http.StatusTooManyRequests {
			IncrementBackpressure("queue_full")
		}
		writeJSONError(w, code, msg)
		logChat(r, lvl, "chat end", code, start, err)
	}
}

// streamWriter records whether any chat bytes were sent.
type streamWriter struct {
	w     io.Writer
	wrote bool
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		s.wrote = true
	}
	return s.w.Write(p)
}

func rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l := chatLimiter; l != nil && !l.Allow() {
			IncrementBackpressure("rate_limit")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// generation godoc
// @Summary      Recent generation
// @Tags         chat
// @Produce      json
// @Param        id   path      string  true  "Generation ID"
// @Success      200  {object}  types.GenerationSummary
// @Failure      404  {object}  types.ErrorResponse
// @Router       /api/generations/{id} [get]
func generation(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := svc.Generation(chi.URLParam(r, "id"))
		if !ok {
			writeJSONError(w, http.StatusNotFound, "generation not found")
			return
		}
		writeJSON(w, g)
	}
}

// status godoc
// @Summary      Bridge status
// @Tags         ops
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func status(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
