package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const defaultReadyTimeout = 30 * time.Second

// llamaServerEngine streams completions from a llama.cpp server. When the
// server was spawned by Load, Close terminates it.
type llamaServerEngine struct {
	baseURL    string
	httpClient *http.Client
	opts       Options
	log        zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
	stderr *tailBuffer
}

// completionRequest is the payload for /v1/completions.
type completionRequest struct {
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   float32  `json:"temperature,omitempty"`
	TopP          float32  `json:"top_p,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Seed          int      `json:"seed,omitempty"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
	Stream        bool     `json:"stream"`
	CachePrompt   bool     `json:"cache_prompt"`
}

// completionChunk covers both the completions (text) and chat (delta) shapes.
type completionChunk struct {
	Choices []struct {
		Text  string `json:"text"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func loadLlamaServer(ctx context.Context, opts Options) (Engine, error) {
	e := &llamaServerEngine{
		// Timeout=0: every call carries a context deadline or is bounded by the stream.
		httpClient: &http.Client{Timeout: 0},
		opts:       opts,
		log:        opts.Logger.With().Str("engine", BackendLlamaServer).Logger(),
	}
	if u := strings.TrimSpace(opts.ServerURL); u != "" {
		e.baseURL = strings.TrimRight(u, "/")
		if err := e.waitReady(ctx); err != nil {
			return nil, err
		}
		e.log.Info().Str("url", e.baseURL).Msg("llama-server reachable")
		return e, nil
	}
	if err := e.spawn(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *llamaServerEngine) spawn(ctx context.Context) error {
	modelPath := strings.TrimSpace(e.opts.ModelPath)
	if modelPath == "" {
		return errors.New("model path is empty")
	}
	if fi, err := os.Stat(modelPath); err != nil {
		return err
	} else if fi.IsDir() {
		return fmt.Errorf("model path is a directory")
	}
	bin := strings.TrimSpace(e.opts.ServerBin)
	if bin == "" {
		bin = discoverLlamaBin()
	}
	if bin == "" {
		return errors.New("llama-server not found: set --llama-bin or install llama.cpp")
	}
	host := strings.TrimSpace(e.opts.ServerHost)
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := pickFreePort(host)
	if err != nil {
		return err
	}
	e.baseURL = fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))

	args := []string{"-m", modelPath, "--host", host, "--port", strconv.Itoa(port)}
	if e.opts.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(e.opts.ContextSize))
	}
	if e.opts.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.opts.Threads))
	}
	args = append(args, e.opts.ServerArgs...)

	cmd := exec.Command(bin, args...)
	cmd.Dir = filepath.Dir(modelPath)
	e.stderr = &tailBuffer{max: 4096}
	cmd.Stderr = e.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start llama-server: %w", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	e.mu.Lock()
	e.cmd = cmd
	e.exited = exited
	e.mu.Unlock()
	e.log.Info().Int("pid", cmd.Process.Pid).Str("url", e.baseURL).Str("model", modelPath).Msg("llama-server started")

	if err := e.waitReady(ctx); err != nil {
		_ = e.Close()
		return err
	}
	e.log.Info().Int("pid", cmd.Process.Pid).Msg("llama-server ready")
	return nil
}

// waitReady polls /v1/models until it answers 2xx, the spawned process
// exits, or the ready timeout elapses.
func (e *llamaServerEngine) waitReady(ctx context.Context) error {
	timeout := e.opts.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	e.mu.Lock()
	exited := e.exited
	e.mu.Unlock()
	for {
		if e.healthy(ctx) {
			return nil
		}
		select {
		case <-exited:
			tail := ""
			if e.stderr != nil {
				tail = e.stderr.String()
			}
			return fmt.Errorf("llama-server exited before ready; stderr tail: %s", tail)
		case <-ctx.Done():
			return fmt.Errorf("llama-server not ready at %s: %w", e.baseURL, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (e *llamaServerEngine) healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (e *llamaServerEngine) Generate(ctx context.Context, prompt string, onFragment func(string) error) error {
	payload := completionRequest{
		Prompt:        prompt,
		MaxTokens:     e.opts.MaxTokens,
		Temperature:   e.opts.Temperature,
		TopP:          e.opts.TopP,
		TopK:          e.opts.TopK,
		Stop:          e.opts.Stop,
		Seed:          e.opts.Seed,
		RepeatPenalty: e.opts.RepeatPenalty,
		Stream:        true,
		CachePrompt:   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("llama-server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		if l := strings.TrimSpace(line); strings.HasPrefix(strings.ToLower(l), "data:") {
			data := strings.TrimSpace(l[len("data:"):])
			if data == "[DONE]" {
				return nil
			}
			var chunk completionChunk
			if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
				return fmt.Errorf("decode stream chunk: %w", jerr)
			}
			for _, c := range chunk.Choices {
				frag := c.Text
				if frag == "" {
					frag = c.Delta.Content
				}
				if frag == "" {
					continue
				}
				if cbErr := onFragment(frag); cbErr != nil {
					return cbErr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Close stops a spawned llama-server: SIGTERM first, kill after 2s.
func (e *llamaServerEngine) Close() error {
	e.mu.Lock()
	cmd, exited := e.cmd, e.exited
	e.cmd = nil
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-exited
	}
	e.log.Info().Int("pid", cmd.Process.Pid).Msg("llama-server stopped")
	return nil
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// discoverLlamaBin locates a llama.cpp server binary in common paths.
func discoverLlamaBin() string {
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, "apps", "llama.cpp", "build", "bin", "llama-server"),
		"/usr/local/bin/llama-server",
		"/opt/homebrew/bin/llama-server",
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	if lp, err := exec.LookPath("llama-server"); err == nil {
		return lp
	}
	return ""
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
