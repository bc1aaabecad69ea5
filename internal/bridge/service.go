package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chatd/pkg/types"
)

const (
	DefaultInboundCapacity  = 3
	DefaultOutboundCapacity = 3
)

// Config configures a Service.
type Config struct {
	Engine Engine
	// EngineName is reported by Status.
	EngineName string

	InboundCapacity  int
	OutboundCapacity int
	// AdmissionTimeout bounds how long a request may wait for room in the
	// inbound queue before it is refused as too busy. Zero waits until the
	// client gives up.
	AdmissionTimeout time.Duration
	// RecentTTL is how long finished generations stay queryable.
	RecentTTL time.Duration

	Logger    zerolog.Logger
	Publisher EventPublisher
}

// Service is the process-wide bridge: one worker, two queues and a gate.
type Service struct {
	eng        Engine
	engineName string
	log        zerolog.Logger
	pub        EventPublisher

	inbound  *Queue[Prompt]
	outbound *Queue[Item]
	gate     *Gate

	admitTimeout time.Duration
	// admitSlot serializes admission; seq is only touched while holding it.
	admitSlot chan struct{}
	seq       uint64

	recent  *recentLog
	started time.Time

	ready     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	admitted    atomic.Uint64
	generations atomic.Uint64
	failed      atomic.Uint64
	lastErr     atomic.Value // string
}

// New builds a Service. Run must be called to start the worker.
func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, errors.New("bridge: engine is required")
	}
	if cfg.InboundCapacity <= 0 {
		cfg.InboundCapacity = DefaultInboundCapacity
	}
	if cfg.OutboundCapacity <= 0 {
		cfg.OutboundCapacity = DefaultOutboundCapacity
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Service{
		eng:          cfg.Engine,
		engineName:   cfg.EngineName,
		log:          cfg.Logger,
		pub:          pub,
		inbound:      NewQueue[Prompt](cfg.InboundCapacity),
		outbound:     NewQueue[Item](cfg.OutboundCapacity),
		gate:         NewGate(),
		admitTimeout: cfg.AdmissionTimeout,
		admitSlot:    make(chan struct{}, 1),
		recent:       newRecentLog(cfg.RecentTTL),
		started:      time.Now(),
	}, nil
}

// Run runs the worker until ctx is done or the service is closed.
func (s *Service) Run(ctx context.Context) error {
	if s.closed.Load() {
		return ErrQueueClosed
	}
	s.ready.Store(true)
	defer s.ready.Store(false)
	s.log.Info().
		Int("inbound_capacity", s.inbound.Cap()).
		Int("outbound_capacity", s.outbound.Cap()).
		Msg("bridge worker started")
	return s.runWorker(ctx)
}

// Close closes both queues. Blocked producers and consumers return
// ErrQueueClosed; new requests are refused.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.inbound.Close()
		s.outbound.Close()
		s.gate.Close()
		s.recent.close()
		s.log.Info().Msg("bridge closed")
	})
}

// Ready reports whether the worker is running and the service accepts work.
func (s *Service) Ready() bool { return s.ready.Load() && !s.closed.Load() }

// Generation returns the summary of a recent generation.
func (s *Service) Generation(id string) (types.GenerationSummary, bool) {
	return s.recent.get(id)
}

// Status returns a snapshot of the bridge.
func (s *Service) Status() types.StatusResponse {
	state := "starting"
	switch {
	case s.closed.Load():
		state = "closed"
	case s.ready.Load():
		state = "ready"
	}
	holder, held := s.gate.Holder()
	lastErr, _ := s.lastErr.Load().(string)
	now := time.Now()
	return types.StatusResponse{
		State:  state,
		Engine: s.engineName,
		Inbound: types.QueueStatus{
			Len: s.inbound.Len(), Cap: s.inbound.Cap(), Closed: s.inbound.Closed(),
		},
		Outbound: types.QueueStatus{
			Len: s.outbound.Len(), Cap: s.outbound.Cap(), Closed: s.outbound.Closed(),
		},
		Gate:             types.GateStatus{Held: held, HolderSeq: holder, Waiting: s.gate.Waiting()},
		AdmittedTotal:    s.admitted.Load(),
		GenerationsTotal: s.generations.Load(),
		FailedTotal:      s.failed.Load(),
		LastError:        lastErr,
		UptimeSeconds:    int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix:   now.Unix(),
		Recent:           s.recent.latest(recentStatusMax),
	}
}

// admit assigns the next sequence number, queues the prompt and joins the
// gate line as one step.
func (s *Service) admit(ctx context.Context, req types.ChatRequest) (*Ticket, Prompt, error) {
	if s.closed.Load() {
		return nil, Prompt{}, ErrQueueClosed
	}
	actx := ctx
	if s.admitTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.admitTimeout)
		defer cancel()
	}

	select {
	case s.admitSlot <- struct{}{}:
	case <-actx.Done():
		return nil, Prompt{}, s.admitErr(ctx)
	}
	defer func() { <-s.admitSlot }()

	s.seq++
	p := newPrompt(s.seq, req.ID, req.Prompt)
	if err := s.inbound.Push(actx, p); err != nil {
		if IsQueueClosed(err) {
			return nil, Prompt{}, err
		}
		return nil, Prompt{}, s.admitErr(ctx)
	}
	t := s.gate.Enter(p.Seq)
	s.admitted.Add(1)
	s.observeDepth()
	s.recent.update(p.ID, func(g *types.GenerationSummary) {
		g.Seq = p.Seq
		g.State = StatePromptQueued.String()
		g.PromptBytes = len(p.Text)
		g.QueuedUnixMs = p.Enqueued.UnixMilli()
	})
	s.publish(EventPromptQueued, p, nil)
	return t, p, nil
}

// admitErr maps an admission wait that ended early: the client's own
// cancellation passes through, an expired admission budget is too busy.
func (s *Service) admitErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return TooBusyError{Waited: s.admitTimeout}
}

func (s *Service) publish(name string, p Prompt, fields map[string]any) {
	s.pub.Publish(Event{Name: name, Seq: p.Seq, GenerationID: p.ID, At: time.Now(), Fields: fields})
}

func (s *Service) observeDepth() {
	queueDepth.WithLabelValues("inbound").Set(float64(s.inbound.Len()))
	queueDepth.WithLabelValues("outbound").Set(float64(s.outbound.Len()))
}
