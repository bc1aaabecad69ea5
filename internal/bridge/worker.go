package bridge

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"chatd/pkg/types"
)

// Engine produces the fragments for one prompt. It is only ever called from
// the worker goroutine.
type Engine interface {
	Generate(ctx context.Context, prompt string, onFragment func(string) error) error
}

// runWorker is the single consumer of the inbound queue and the single
// producer of the outbound queue. It owns the engine and stays on one OS
// thread for its whole life. It returns nil once the inbound queue is
// closed and ctx.Err() when ctx ends.
func (s *Service) runWorker(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		p, err := s.inbound.Pop(ctx)
		if err != nil {
			s.log.Debug().Err(err).Msg("worker stopping")
			if IsQueueClosed(err) {
				return nil
			}
			return err
		}
		s.observeDepth()
		s.process(ctx, p)
	}
}

func (s *Service) process(ctx context.Context, p Prompt) {
	if p.abandoned() {
		s.log.Debug().Uint64("seq", p.Seq).Str("generation_id", p.ID).Msg("skipping abandoned prompt")
		generationsTotal.WithLabelValues("skipped").Inc()
		return
	}

	s.publish(EventGenerationStart, p, nil)
	start := time.Now()

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-p.abandon:
			cancel()
		case <-stop:
		}
	}()

	fragments := 0
	genErr := s.generate(genCtx, p, func(text string) error {
		if text == "" {
			return nil
		}
		if err := s.outbound.Push(genCtx, fragmentItem(p.Seq, text)); err != nil {
			return err
		}
		fragments++
		fragmentsTotal.Inc()
		s.observeDepth()
		return nil
	})

	outcome := "ok"
	switch {
	case genErr != nil && p.abandoned():
		outcome = "abandoned"
	case IsQueueClosed(genErr):
		outcome = "closed"
	case genErr != nil:
		outcome = "error"
		s.failed.Add(1)
		s.lastErr.Store(genErr.Error())
		s.log.Warn().Err(genErr).Uint64("seq", p.Seq).Str("generation_id", p.ID).Msg("generation failed")
	}
	s.generations.Add(1)
	generationsTotal.WithLabelValues(outcome).Inc()

	s.recent.update(p.ID, func(g *types.GenerationSummary) {
		g.Seq = p.Seq
		g.Fragments = fragments
		if genErr != nil && outcome == "error" {
			g.Error = genErr.Error()
		}
	})

	// The Terminal is pushed with the worker context, not genCtx: an
	// abandoned generation still ends with one so the next holder can skip
	// past it.
	if err := s.outbound.Push(ctx, terminalItem(p.Seq, genErr)); err != nil {
		s.log.Debug().Err(err).Uint64("seq", p.Seq).Msg("terminal not delivered")
	}
	s.observeDepth()

	s.publish(EventGenerationDone, p, map[string]any{
		"outcome":     outcome,
		"fragments":   fragments,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	s.log.Debug().
		Uint64("seq", p.Seq).
		Str("generation_id", p.ID).
		Int("fragments", fragments).
		Str("outcome", outcome).
		Dur("took", time.Since(start)).
		Msg("generation done")
}

// generate runs the engine, turning failures and panics into a
// GenerationError.
func (s *Service) generate(ctx context.Context, p Prompt, emit func(string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &GenerationError{Seq: p.Seq, Err: fmt.Errorf("engine panic: %v", r)}
		}
	}()
	if e := s.eng.Generate(ctx, p.Text, emit); e != nil {
		return &GenerationError{Seq: p.Seq, Err: e}
	}
	return nil
}
