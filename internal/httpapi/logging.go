package httpapi

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// loggingLineWriter echoes streamed text line by line. Text without a
// trailing newline is held until Close.
type loggingLineWriter struct {
	id  string
	buf []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := strings.IndexByte(string(lw.buf), '\n')
		if idx < 0 {
			break
		}
		lw.emit(string(lw.buf[:idx]))
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// Close logs whatever is left in the buffer.
func (lw *loggingLineWriter) Close() error {
	if len(lw.buf) > 0 {
		lw.emit(string(lw.buf))
		lw.buf = nil
	}
	return nil
}

func (lw *loggingLineWriter) emit(line string) {
	if line == "" {
		return
	}
	if zlog != nil {
		zlog.Debug().Str("generation_id", lw.id).Str("text", line).Msg("chat>")
		return
	}
	log.Printf("chat> %s", line)
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("CHATD_REQUEST_LOG"))

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logChat writes one request log line at info, or at error when lvl only
// asks for errors and err is a server fault.
func logChat(r *http.Request, lvl LogLevel, msg string, status int, start time.Time, err error) {
	if lvl < LevelInfo && !(lvl >= LevelError && err != nil) {
		return
	}
	rid := middleware.GetReqID(r.Context())
	if zlog != nil {
		ev := zlog.Info()
		if err != nil && status >= http.StatusInternalServerError {
			ev = zlog.Error()
		}
		ev = ev.Str("path", r.URL.Path)
		if !start.IsZero() {
			ev = ev.Int("status", status).Dur("dur", time.Since(start))
		}
		if rid != "" {
			ev = ev.Str("request_id", rid)
		}
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg(msg)
		return
	}
	switch {
	case start.IsZero():
		log.Printf("%s path=%s request_id=%s", msg, r.URL.Path, rid)
	case err != nil:
		log.Printf("%s path=%s status=%d dur=%s request_id=%s err=%v", msg, r.URL.Path, status, time.Since(start), rid, err)
	default:
		log.Printf("%s path=%s status=%d dur=%s request_id=%s", msg, r.URL.Path, status, time.Since(start), rid)
	}
}
