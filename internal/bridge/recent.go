package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"chatd/pkg/types"
)

const (
	defaultRecentTTL = 10 * time.Minute
	recentStatusMax  = 10
)

// recentLog keeps generation summaries for a while after they finish.
// Both the worker and the responder update the same entry, so writes are
// merged under mu.
type recentLog struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, types.GenerationSummary]
}

func newRecentLog(ttl time.Duration) *recentLog {
	if ttl <= 0 {
		ttl = defaultRecentTTL
	}
	c := ttlcache.New[string, types.GenerationSummary](
		ttlcache.WithTTL[string, types.GenerationSummary](ttl),
		ttlcache.WithDisableTouchOnHit[string, types.GenerationSummary](),
	)
	go c.Start()
	return &recentLog{cache: c}
}

func (r *recentLog) close() { r.cache.Stop() }

// update applies fn to the summary stored under id, creating it if absent.
func (r *recentLog) update(id string, fn func(*types.GenerationSummary)) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var s types.GenerationSummary
	if it := r.cache.Get(id); it != nil {
		s = it.Value()
	}
	s.ID = id
	fn(&s)
	r.cache.Set(id, s, ttlcache.DefaultTTL)
}

func (r *recentLog) get(id string) (types.GenerationSummary, bool) {
	it := r.cache.Get(id)
	if it == nil {
		return types.GenerationSummary{}, false
	}
	return it.Value(), true
}

// latest returns up to n summaries, newest first.
func (r *recentLog) latest(n int) []types.GenerationSummary {
	items := r.cache.Items()
	out := make([]types.GenerationSummary, 0, len(items))
	for _, it := range items {
		out = append(out, it.Value())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
