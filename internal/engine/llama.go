//go:build llama

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

// llamaEngine owns a model loaded in-process.
type llamaEngine struct {
	model *llama.LLama
	opts  Options
}

func loadLlama(opts Options) (Engine, error) {
	path := strings.TrimSpace(opts.ModelPath)
	if path == "" {
		return nil, errors.New("model path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("model path is a directory")
	}
	mo := []llama.ModelOption{}
	if opts.ContextSize > 0 {
		mo = append(mo, llama.SetContext(opts.ContextSize))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaEngine{model: m, opts: opts}, nil
}

func (e *llamaEngine) Generate(ctx context.Context, prompt string, onFragment func(string) error) error {
	if e.model == nil {
		return errors.New("llama model not initialized")
	}
	var cbErr error
	e.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			cbErr = ctx.Err()
			return false
		default:
		}
		if err := onFragment(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	_, err := e.model.Predict(prompt, predictOptions(e.opts)...)
	if cbErr != nil {
		return cbErr
	}
	return err
}

func (e *llamaEngine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

// predictOptions converts Options into go-llama.cpp predict options.
func predictOptions(o Options) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(o.MaxTokens, 512)),
		llama.SetThreads(zn(o.Threads, 1)),
		llama.SetTopP(zf(o.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(o.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(o.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(o.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if o.Seed != 0 {
		po = append(po, llama.SetSeed(o.Seed))
	}
	if len(o.Stop) > 0 {
		po = append(po, llama.SetStopWords(o.Stop...))
	}
	return po
}
