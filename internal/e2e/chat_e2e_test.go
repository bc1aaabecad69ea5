package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"chatd/internal/bridge"
	"chatd/internal/httpapi"
	"chatd/pkg/types"
)

func TestE2E_ChatRoundTrip(t *testing.T) {
	s := newStack(t, nil)

	resp, err := http.Get(s.srv.URL + "/api/chat?prompt=" + url.QueryEscape("Hello brave new world"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if string(body) != "Hello brave new world" {
		t.Fatalf("body %q", body)
	}
	id := resp.Header.Get(httpapi.GenerationHeader)
	if id == "" {
		t.Fatalf("missing %s header", httpapi.GenerationHeader)
	}

	gresp, err := http.Get(s.srv.URL + "/api/generations/" + id)
	if err != nil {
		t.Fatalf("get generation: %v", err)
	}
	defer gresp.Body.Close()
	var g types.GenerationSummary
	if err := json.NewDecoder(gresp.Body).Decode(&g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.State != bridge.StateCompleted.String() || g.BytesStreamed != len(body) || g.Fragments != 4 {
		t.Fatalf("unexpected summary: %+v", g)
	}
}

func TestE2E_PostChat(t *testing.T) {
	s := newStack(t, nil)
	resp, err := http.Post(s.srv.URL+"/api/chat", "application/json", strings.NewReader(`{"prompt":"posted prompt"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(b) != "posted prompt" {
		t.Fatalf("status %d body %q", resp.StatusCode, b)
	}
}

func TestE2E_EngineFailureEndsStreamWith200(t *testing.T) {
	s := newStack(t, nil)

	resp, err := http.Get(s.srv.URL + "/api/chat?prompt=" + url.QueryEscape("fail right away"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %q, want 200", resp.StatusCode, body)
	}
	if len(body) != 0 {
		t.Fatalf("body %q, want empty", body)
	}
	if st := s.svc.Status(); st.FailedTotal != 1 {
		t.Fatalf("failed_total=%d", st.FailedTotal)
	}

	// The worker carries on with the next prompt.
	code, got := s.chat(t, "after the failure")
	if code != http.StatusOK || got != "after the failure" {
		t.Fatalf("status %d body %q", code, got)
	}
}

func TestE2E_ConcurrentClientsGetTheirOwnText(t *testing.T) {
	s := newStack(t, nil)
	s.llama.delay = time.Millisecond

	const clients = 8
	got := make([]string, clients)
	codes := make([]int, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], got[i] = s.chat(t, fmt.Sprintf("client %d says hi", i))
		}(i)
	}
	wg.Wait()
	for i := 0; i < clients; i++ {
		want := fmt.Sprintf("client %d says hi", i)
		if codes[i] != http.StatusOK || got[i] != want {
			t.Fatalf("client %d: status %d body %q", i, codes[i], got[i])
		}
	}

	resp, err := http.Get(s.srv.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	var st types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.AdmittedTotal != clients || st.GenerationsTotal != clients || st.State != "ready" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Gate.Held || st.Inbound.Len != 0 {
		t.Fatalf("bridge not idle: %+v", st)
	}
}

func TestE2E_QueueFullIs429(t *testing.T) {
	s := newStack(t, func(c *bridge.Config) {
		c.InboundCapacity = 1
		c.AdmissionTimeout = 50 * time.Millisecond
	})

	type result struct {
		code int
		body string
	}
	first := make(chan result, 1)
	second := make(chan result, 1)
	go func() {
		c, b := s.chat(t, "slow first answer")
		first <- result{c, b}
	}()
	waitUntil(t, func() bool { return len(s.llama.seen()) == 1 })
	go func() {
		c, b := s.chat(t, "second answer")
		second <- result{c, b}
	}()
	waitUntil(t, func() bool { return s.svc.Status().Inbound.Len == 1 })

	code, body := s.chat(t, "no room")
	if code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d %q", code, body)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal([]byte(body), &e); err != nil || e.Code != http.StatusTooManyRequests {
		t.Fatalf("error body %q", body)
	}

	s.llama.unblock()
	if r := <-first; r.code != http.StatusOK || r.body != "slow first answer" {
		t.Fatalf("first: %+v", r)
	}
	if r := <-second; r.code != http.StatusOK || r.body != "second answer" {
		t.Fatalf("second: %+v", r)
	}
}

func TestE2E_DisconnectFreesTheModel(t *testing.T) {
	s := newStack(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.srv.URL+"/api/chat?prompt="+url.QueryEscape("slow and never finished"), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		t.Fatalf("read first bytes: %v", err)
	}
	if string(buf) != "slow" {
		t.Fatalf("first bytes %q", buf)
	}
	cancel()
	resp.Body.Close()

	// The fake llama never releases the slow prompt, so this only finishes
	// if the abandoned generation was canceled.
	code, body := s.chat(t, "fresh start")
	if code != http.StatusOK || body != "fresh start" {
		t.Fatalf("status %d body %q", code, body)
	}
	waitUntil(t, func() bool {
		for _, g := range s.svc.Status().Recent {
			if g.State == bridge.StateAborted.String() {
				return true
			}
		}
		return false
	})
}

func TestE2E_Probes(t *testing.T) {
	s := newStack(t, nil)
	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		resp, err := http.Get(s.srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || string(b) != want {
			t.Fatalf("%s: %d %q", path, resp.StatusCode, b)
		}
	}
	resp, err := http.Get(s.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), "chatd_bridge_") {
		t.Fatalf("bridge metrics not exported")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
