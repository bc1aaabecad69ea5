package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/bridge"
	"chatd/internal/engine"
	"chatd/internal/httpapi"
)

// fakeLlama is a llama.cpp server stand-in that streams the prompt back one
// word per SSE event. Prompts starting with "slow" pause between words until
// release is closed; prompts starting with "fail" get an HTTP error.
type fakeLlama struct {
	mu      sync.Mutex
	prompts []string
	release chan struct{}
	delay   time.Duration
}

func newFakeLlama(t *testing.T) (*fakeLlama, *httptest.Server) {
	t.Helper()
	f := &fakeLlama{release: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"id":"fake","object":"model"}]}`)
	})
	mux.HandleFunc("/v1/completions", f.complete)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		f.unblock()
		ts.Close()
	})
	return f, ts
}

func (f *fakeLlama) unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.release:
	default:
		close(f.release)
	}
}

func (f *fakeLlama) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeLlama) complete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, body.Prompt)
	f.mu.Unlock()

	if strings.HasPrefix(body.Prompt, "fail") {
		http.Error(w, "decode failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	fl, _ := w.(http.Flusher)
	slow := strings.HasPrefix(body.Prompt, "slow")
	for i, word := range strings.Fields(body.Prompt) {
		if i > 0 {
			word = " " + word
		}
		b, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"text": word}}})
		if _, err := io.WriteString(w, "data: "+string(b)+"\n\n"); err != nil {
			return
		}
		if fl != nil {
			fl.Flush()
		}
		if slow {
			select {
			case <-f.release:
			case <-r.Context().Done():
				return
			}
		} else if f.delay > 0 {
			time.Sleep(f.delay)
		}
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
}

// stack is the whole chat path: llama-server engine, bridge and HTTP mux.
type stack struct {
	llama *fakeLlama
	svc   *bridge.Service
	srv   *httptest.Server
}

func newStack(t *testing.T, mutate func(*bridge.Config)) *stack {
	t.Helper()
	llama, ts := newFakeLlama(t)
	eng, err := engine.Load(context.Background(), engine.Options{
		Backend:   engine.BackendLlamaServer,
		ServerURL: ts.URL,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine load: %v", err)
	}
	cfg := bridge.Config{Engine: eng, EngineName: engine.BackendLlamaServer, Logger: zerolog.Nop()}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := bridge.New(cfg)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()
	httpapi.SetBaseContext(context.Background())
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(func() {
		llama.unblock()
		svc.Close()
		cancel()
		<-done
		srv.Close()
		_ = eng.Close()
	})
	deadline := time.Now().Add(2 * time.Second)
	for !svc.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("bridge never became ready")
		}
		time.Sleep(time.Millisecond)
	}
	return &stack{llama: llama, svc: svc, srv: srv}
}

// chat issues GET /api/chat and returns status and body.
func (s *stack) chat(t *testing.T, prompt string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/api/chat?prompt="+url.QueryEscape(prompt), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}
