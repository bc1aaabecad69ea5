package bridge

import (
	"sync"
	"time"
)

// Prompt is an admitted request waiting for the worker.
type Prompt struct {
	Seq      uint64
	ID       string
	Text     string
	Enqueued time.Time

	// abandon is closed once the client gives up on the prompt.
	abandon     chan struct{}
	abandonOnce *sync.Once
}

func newPrompt(seq uint64, id, text string) Prompt {
	return Prompt{
		Seq:         seq,
		ID:          id,
		Text:        text,
		Enqueued:    time.Now(),
		abandon:     make(chan struct{}),
		abandonOnce: &sync.Once{},
	}
}

// markAbandoned tells the worker nobody is listening anymore.
func (p Prompt) markAbandoned() {
	if p.abandon == nil {
		return
	}
	p.abandonOnce.Do(func() { close(p.abandon) })
}

func (p Prompt) abandoned() bool {
	if p.abandon == nil {
		return false
	}
	select {
	case <-p.abandon:
		return true
	default:
		return false
	}
}

// Kind distinguishes outbound items.
type Kind uint8

const (
	KindFragment Kind = iota + 1
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Item is one outbound element: a Fragment of generated text or the single
// Terminal closing a generation. Seq identifies the generation.
type Item struct {
	Seq  uint64
	Kind Kind
	Text string
	// Err is the generation failure carried by a Terminal, if any.
	Err error
}

func fragmentItem(seq uint64, text string) Item {
	return Item{Seq: seq, Kind: KindFragment, Text: text}
}

func terminalItem(seq uint64, err error) Item {
	return Item{Seq: seq, Kind: KindTerminal, Err: err}
}

// IsTerminal reports whether the item ends its generation.
func (it Item) IsTerminal() bool { return it.Kind == KindTerminal }
