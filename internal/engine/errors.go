package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBackend is wrapped by LoadError for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown engine backend")
	// ErrNotBuilt is wrapped by LoadError when the binary lacks a backend.
	ErrNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")
	// ErrVocabularyUnsupported is wrapped by LoadError when an external
	// vocabulary source is requested.
	ErrVocabularyUnsupported = errors.New("only the vocabulary embedded in the model is supported")
)

// LoadError reports that an engine could not be loaded. The process must not
// serve traffic without an engine.
type LoadError struct {
	Backend string
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load %s engine %q: %v", e.Backend, e.Path, e.Err)
	}
	return fmt.Sprintf("load %s engine: %v", e.Backend, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is (or wraps) a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

func asLoadError(backend, path string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{Backend: backend, Path: path, Err: err}
}
