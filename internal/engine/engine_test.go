package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestLoad_UnknownBackend(t *testing.T) {
	_, err := Load(context.Background(), Options{Backend: "gpt-9"})
	if !IsLoadError(err) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend in chain: %v", err)
	}
}

func TestLoad_ExternalVocabularyRejected(t *testing.T) {
	_, err := Load(context.Background(), Options{Backend: BackendLlamaServer, Vocabulary: "/tmp/tokenizer.json"})
	if !errors.Is(err, ErrVocabularyUnsupported) {
		t.Fatalf("expected ErrVocabularyUnsupported, got %v", err)
	}
}

func TestLoadError_MessageAndWrap(t *testing.T) {
	inner := errors.New("bad magic")
	err := fmt.Errorf("startup: %w", &LoadError{Backend: BackendLlama, Path: "/m.gguf", Err: inner})
	if !IsLoadError(err) {
		t.Fatalf("IsLoadError false for wrapped error")
	}
	if !errors.Is(err, inner) {
		t.Fatalf("inner error not reachable")
	}
	if got := err.Error(); got != `startup: load llama engine "/m.gguf": bad magic` {
		t.Fatalf("message=%q", got)
	}
	if IsLoadError(inner) {
		t.Fatalf("plain error reported as LoadError")
	}
}
