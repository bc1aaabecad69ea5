package bridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatd/pkg/types"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// words splits s into fragments the way a tokenizer might: "Hello world"
// becomes "Hello", " world".
func words(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, " ")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSuffix(p, " ")
		if i > 0 {
			p = " " + p
		}
		out = append(out, p)
	}
	return out
}

// fakeEngine echoes the prompt back word by word. Prompts listed in fail
// return that error after their fragments; prompts in panics panic. When
// hold is set, prompts starting with "hold" block until it is closed.
type fakeEngine struct {
	mu      sync.Mutex
	fail    map[string]error
	panics  map[string]bool
	hold    chan struct{}
	started chan string
	prompts []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		fail:    map[string]error{},
		panics:  map[string]bool{},
		started: make(chan string, 64),
	}
}

func (f *fakeEngine) Generate(ctx context.Context, prompt string, onFragment func(string) error) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	failErr := f.fail[prompt]
	doPanic := f.panics[prompt]
	hold := f.hold
	f.mu.Unlock()
	select {
	case f.started <- prompt:
	default:
	}

	if doPanic {
		panic("boom: " + prompt)
	}
	for i, w := range words(prompt) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onFragment(w); err != nil {
			return err
		}
		if i == 0 && hold != nil && strings.HasPrefix(prompt, "hold") {
			select {
			case <-hold:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return failErr
}

func (f *fakeEngine) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// startService runs a Service on eng until the test ends.
func startService(t *testing.T, eng Engine, mutate func(*Config)) (*Service, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	cfg := Config{
		Engine:     eng,
		EngineName: "fake",
		Logger:     zerolog.Nop(),
		Publisher:  pub,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		svc.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("worker did not stop")
		}
	})
	require.Eventually(t, svc.Ready, time.Second, time.Millisecond)
	return svc, pub
}

type streamResult struct {
	out string
	err error
}

// streamAsync runs Stream in the background and reports its result.
func streamAsync(ctx context.Context, svc *Service, prompt string, w *lockedBuffer) <-chan streamResult {
	ch := make(chan streamResult, 1)
	go func() {
		err := svc.Stream(ctx, types.ChatRequest{Prompt: prompt}, w, func() {})
		ch <- streamResult{out: w.String(), err: err}
	}()
	return ch
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// failingWriter accepts ok writes, then fails.
type failingWriter struct {
	ok    int
	wrote bytes.Buffer
}

var errBrokenPipe = errors.New("broken pipe")

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.ok <= 0 {
		return 0, errBrokenPipe
	}
	f.ok--
	return f.wrote.Write(p)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, time.Millisecond)
}
