package bridge

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"chatd/pkg/types"
)

// Stream admits req, waits for the gate and copies the fragments of its
// generation to w, calling flush after each one. It returns nil once the
// generation's terminal arrives, or the generation's error if the engine
// failed. Nothing is written to w before the gate is held.
//
// Errors: ErrQueueClosed on shutdown, a too-busy error when admission timed
// out, ctx.Err() when the client left while waiting, and an error matching
// ErrClientDisconnected when a write failed.
func (s *Service) Stream(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) (err error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	rs := &requestState{state: StateIdle}

	ticket, p, err := s.admit(ctx, req)
	if err != nil {
		streamsTotal.WithLabelValues(StateAborted.String()).Inc()
		return err
	}
	rs.to(StatePromptQueued)
	log := s.log.With().Uint64("seq", p.Seq).Str("generation_id", p.ID).Logger()

	acquired := false
	defer func() {
		if acquired {
			s.publish(EventGateReleased, p, nil)
		}
		ticket.Release()
		if !rs.state.Final() {
			rs.to(StateAborted)
			p.markAbandoned()
		}
		streamsTotal.WithLabelValues(rs.state.String()).Inc()
		name := EventStreamCompleted
		if rs.state == StateAborted {
			name = EventStreamAborted
		}
		s.publish(name, p, map[string]any{"bytes": rs.bytes})
		s.recent.update(p.ID, func(g *types.GenerationSummary) {
			g.State = rs.state.String()
			g.BytesStreamed = rs.bytes
			g.FinishedUnixMs = time.Now().UnixMilli()
		})
		log.Debug().Str("state", rs.state.String()).Int("bytes", rs.bytes).Msg("stream finished")
	}()

	rs.to(StateAwaitingGate)
	waitStart := time.Now()
	if err := ticket.Wait(ctx); err != nil {
		return err
	}
	acquired = true
	gateWaitSeconds.Observe(time.Since(waitStart).Seconds())
	s.publish(EventGateAcquired, p, nil)
	rs.to(StateStreaming)
	s.recent.update(p.ID, func(g *types.GenerationSummary) {
		g.State = StateStreaming.String()
		g.StartedUnixMs = time.Now().UnixMilli()
	})

	for {
		it, err := s.outbound.Pop(ctx)
		if err != nil {
			return err
		}
		s.observeDepth()
		if it.Seq != p.Seq {
			// Only earlier generations can precede ours; their clients
			// are gone.
			discardedItemsTotal.Inc()
			log.Debug().Uint64("item_seq", it.Seq).Stringer("kind", it.Kind).Msg("discarding stale item")
			continue
		}
		if it.IsTerminal() {
			rs.to(StateCompleted)
			return it.Err
		}
		n, err := io.WriteString(w, it.Text)
		rs.bytes += n
		if err != nil {
			return disconnected(err)
		}
		if err := safeFlush(flush); err != nil {
			return disconnected(err)
		}
	}
}

type requestState struct {
	state State
	bytes int
}

func (r *requestState) to(s State) {
	if CanTransition(r.state, s) {
		r.state = s
	}
}

type flushPanic struct{ v any }

func (f flushPanic) Error() string { return fmt.Sprintf("flush panicked: %v", f.v) }

// safeFlush calls flush, reporting a panic (as some writers do once the
// connection is gone) as an error.
func safeFlush(flush func()) (err error) {
	if flush == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = flushPanic{v: r}
		}
	}()
	flush()
	return nil
}
