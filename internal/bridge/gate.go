package bridge

import (
	"container/list"
	"context"
	"sync"
)

// Gate grants exclusive access to the outbound queue, one holder at a time,
// in the order tickets were issued.
type Gate struct {
	mu        sync.Mutex
	holder    *Ticket
	waiters   list.List // of *Ticket
	done      chan struct{}
	closeOnce sync.Once
}

type ticketState uint8

const (
	ticketWaiting ticketState = iota
	ticketHeld
	ticketDone
)

// Ticket is a place in the gate line. Release must be called on every exit
// path; it is safe to call more than once.
type Ticket struct {
	g     *Gate
	Seq   uint64
	ready chan struct{}
	elem  *list.Element
	state ticketState
}

// NewGate returns an open gate.
func NewGate() *Gate { return &Gate{done: make(chan struct{})} }

// Enter joins the line without blocking. If the gate is free the ticket
// holds it immediately. After Close the ticket is never granted and its
// Wait returns ErrQueueClosed.
func (g *Gate) Enter(seq uint64) *Ticket {
	t := &Ticket{g: g, Seq: seq, ready: make(chan struct{})}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.isClosed() {
		t.state = ticketDone
		return t
	}
	if g.holder == nil && g.waiters.Len() == 0 {
		g.grantLocked(t)
		return t
	}
	t.elem = g.waiters.PushBack(t)
	return t
}

// Acquire enters and waits in one call.
func (g *Gate) Acquire(ctx context.Context, seq uint64) (*Ticket, error) {
	t := g.Enter(seq)
	if err := t.Wait(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Wait blocks until the ticket holds the gate. When ctx ends first the
// ticket is given up and ctx.Err() returned; after Close waiters get
// ErrQueueClosed.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	default:
	}
	select {
	case <-t.ready:
		return nil
	case <-t.g.done:
		t.Release()
		return ErrQueueClosed
	case <-ctx.Done():
		t.Release()
		return ctx.Err()
	}
}

// Held reports whether the ticket currently holds the gate.
func (t *Ticket) Held() bool {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	return t.state == ticketHeld
}

// Release gives the gate to the next waiter, or leaves the line if the
// ticket was still waiting.
func (t *Ticket) Release() {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	switch t.state {
	case ticketDone:
		return
	case ticketWaiting:
		if t.elem != nil {
			g.waiters.Remove(t.elem)
			t.elem = nil
		}
		t.state = ticketDone
		return
	}
	t.state = ticketDone
	g.holder = nil
	if g.isClosed() {
		return
	}
	if front := g.waiters.Front(); front != nil {
		next := g.waiters.Remove(front).(*Ticket)
		next.elem = nil
		g.grantLocked(next)
	}
}

// Close wakes every waiter with ErrQueueClosed. The current holder keeps
// the gate until it releases; nobody is granted it afterwards.
func (g *Gate) Close() {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		close(g.done)
		g.mu.Unlock()
	})
}

func (g *Gate) isClosed() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

func (g *Gate) grantLocked(t *Ticket) {
	t.state = ticketHeld
	g.holder = t
	close(t.ready)
}

// Holder returns the sequence number of the current holder.
func (g *Gate) Holder() (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder == nil {
		return 0, false
	}
	return g.holder.Seq, true
}

// Waiting returns the number of tickets in line behind the holder.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters.Len()
}
