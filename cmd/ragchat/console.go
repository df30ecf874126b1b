package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// consoleSubscriber renders a conversation on a terminal. Deltas are
// printed as they arrive; an answer that was not streamed, or that differs
// from what was streamed (the fallback after a failure), is printed whole.
type consoleSubscriber struct {
	out io.Writer

	mu      sync.Mutex
	partial strings.Builder
	idle    chan struct{}
}

var _ ports.Subscriber = (*consoleSubscriber)(nil)

func newConsoleSubscriber(out io.Writer) *consoleSubscriber {
	return &consoleSubscriber{out: out, idle: make(chan struct{}, 1)}
}

func (c *consoleSubscriber) OnMessageAppended(msg entities.Message) {
	if msg.Role != entities.RoleAssistant {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.partial.Len() == 0:
		fmt.Fprintln(c.out, msg.Content)
	case c.partial.String() == msg.Content:
		fmt.Fprintln(c.out)
	default:
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, msg.Content)
	}
	c.partial.Reset()
}

func (c *consoleSubscriber) OnStreamDelta(delta string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partial.WriteString(delta)
	fmt.Fprint(c.out, delta)
}

func (c *consoleSubscriber) OnStatusChanged(status entities.Status) {
	if status != entities.StatusIdle {
		return
	}
	c.mu.Lock()
	if c.partial.Len() > 0 {
		// Idle without an answer: the turn was cancelled mid-stream.
		fmt.Fprintln(c.out, " [cancelled]")
		c.partial.Reset()
	}
	c.mu.Unlock()

	select {
	case c.idle <- struct{}{}:
	default:
	}
}

// Idle is signalled each time the conversation returns to Idle.
func (c *consoleSubscriber) Idle() <-chan struct{} { return c.idle }
