package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"pgregory.net/rapid"

	"chatd/pkg/types"
)

// Concurrent clients each receive exactly their own text, and the gate is
// held by one generation at a time in admission order.
func TestStream_TotalOrderProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		clients := rapid.IntRange(1, 6).Draw(rt, "clients")
		inCap := rapid.IntRange(1, 3).Draw(rt, "inbound")
		outCap := rapid.IntRange(1, 3).Draw(rt, "outbound")
		prompts := make([]string, clients)
		for i := range prompts {
			n := rapid.IntRange(0, 6).Draw(rt, fmt.Sprintf("words%d", i))
			ws := make([]string, n)
			for j := range ws {
				ws[j] = fmt.Sprintf("c%dw%d", i, j)
			}
			prompts[i] = strings.Join(ws, " ")
		}

		pub := NewMemoryPublisher()
		svc, err := New(Config{
			Engine:           newFakeEngine(),
			InboundCapacity:  inCap,
			OutboundCapacity: outCap,
			Logger:           zerolog.Nop(),
			Publisher:        pub,
		})
		if err != nil {
			rt.Fatalf("new: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		runDone := make(chan struct{})
		go func() {
			_ = svc.Run(ctx)
			close(runDone)
		}()
		defer func() {
			svc.Close()
			cancel()
			<-runDone
		}()

		outs := make([]string, clients)
		errs := make([]error, clients)
		var wg sync.WaitGroup
		for i := range prompts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var buf lockedBuffer
				errs[i] = svc.Stream(ctx, types.ChatRequest{ID: fmt.Sprint(i), Prompt: prompts[i]}, &buf, nil)
				outs[i] = buf.String()
			}(i)
		}
		wg.Wait()

		for i := range prompts {
			if errs[i] != nil {
				rt.Fatalf("client %d: %v", i, errs[i])
			}
			if outs[i] != prompts[i] {
				rt.Fatalf("client %d got %q want %q", i, outs[i], prompts[i])
			}
		}

		var holder uint64
		var last uint64
		held := false
		for _, e := range pub.Events() {
			switch e.Name {
			case EventGateAcquired:
				if held {
					rt.Fatalf("seq %d acquired while %d holds the gate", e.Seq, holder)
				}
				if e.Seq <= last {
					rt.Fatalf("seq %d acquired after %d", e.Seq, last)
				}
				held, holder, last = true, e.Seq, e.Seq
			case EventGateReleased:
				if !held || e.Seq != holder {
					rt.Fatalf("seq %d released without holding", e.Seq)
				}
				held = false
			}
		}
		if got := len(pub.Named(EventGateAcquired)); got != clients {
			rt.Fatalf("gate acquired %d times, want %d", got, clients)
		}
	})
}
