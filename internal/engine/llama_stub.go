//go:build !llama

package engine

// Compiled when the 'llama' build tag is not set, keeping default builds and
// CI CGO-free. The real backend lives in llama.go.

const llamaBuilt = false

func loadLlama(opts Options) (Engine, error) {
	return nil, ErrNotBuilt
}
