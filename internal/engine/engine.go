// Package engine defines the text-generation collaborator used by the bridge
// and the backends that implement it.
//
// Backends:
//
//   - llama: in-process go-llama.cpp. Enabled with `-tags=llama`
//     (llama.go, llama_cgo.go). Without the tag llama_stub.go refuses to load.
//   - llama-server: a llama.cpp server reached over HTTP, either already
//     running (ServerURL) or spawned from ServerBin (llamaserver.go).
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Backend names accepted by Load.
const (
	BackendLlama       = "llama"
	BackendLlamaServer = "llama-server"
)

// VocabularyModel selects the vocabulary embedded in the model file.
const VocabularyModel = "model"

// Engine produces text fragments for a prompt. Generate blocks until the
// generation completes, calling onFragment for each fragment in order. Every
// call starts from a fresh context; nothing carries over between prompts.
// Engines are not safe for concurrent use.
type Engine interface {
	Generate(ctx context.Context, prompt string, onFragment func(string) error) error
	Close() error
}

// Options configures engine loading and generation.
type Options struct {
	Backend    string
	ModelPath  string
	Vocabulary string

	ContextSize int
	Threads     int

	MaxTokens     int
	Temperature   float32
	TopP          float32
	TopK          int
	Seed          int
	RepeatPenalty float32
	Stop          []string

	// llama-server backend
	ServerURL    string
	ServerBin    string
	ServerHost   string
	ServerArgs   []string
	ReadyTimeout time.Duration

	Logger zerolog.Logger
}

// LlamaBuilt reports whether the in-process llama backend was compiled in.
func LlamaBuilt() bool { return llamaBuilt }

// Load constructs the backend named by opts.Backend. All failures are
// reported as *LoadError.
func Load(ctx context.Context, opts Options) (Engine, error) {
	backend := strings.TrimSpace(opts.Backend)
	if backend == "" {
		backend = BackendLlama
	}
	if v := strings.TrimSpace(opts.Vocabulary); v != "" && v != VocabularyModel {
		return nil, &LoadError{Backend: backend, Path: v, Err: ErrVocabularyUnsupported}
	}
	switch backend {
	case BackendLlama:
		e, err := loadLlama(opts)
		if err != nil {
			return nil, asLoadError(backend, opts.ModelPath, err)
		}
		return e, nil
	case BackendLlamaServer:
		e, err := loadLlamaServer(ctx, opts)
		if err != nil {
			return nil, asLoadError(backend, opts.ModelPath, err)
		}
		return e, nil
	default:
		return nil, &LoadError{Backend: backend, Err: ErrUnknownBackend}
	}
}

// helpers
func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
