package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

const keepAliveInterval = 15 * time.Second

// sseStream writes Server-Sent Events and flushes after each one.
type sseStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEStream(w http.ResponseWriter) *sseStream {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	return &sseStream{w: w, rc: rc}
}

func (s *sseStream) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// sseSubscriber hands conversation events to the SSE handler goroutine.
// Callbacks block until the handler takes the event or goes away.
type sseSubscriber struct {
	events chan entities.Event
	done   chan struct{}
}

var _ ports.Subscriber = (*sseSubscriber)(nil)

func newSSESubscriber() *sseSubscriber {
	return &sseSubscriber{
		events: make(chan entities.Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *sseSubscriber) push(ev entities.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *sseSubscriber) OnMessageAppended(msg entities.Message) {
	s.push(entities.Event{Kind: entities.EventMessage, Message: &msg})
}

func (s *sseSubscriber) OnStreamDelta(delta string) {
	s.push(entities.Event{Kind: entities.EventDelta, Delta: delta})
}

func (s *sseSubscriber) OnStatusChanged(status entities.Status) {
	s.push(entities.Event{Kind: entities.EventStatus, Status: status})
}

// handleEvents streams a conversation's notifications. The first event is
// a snapshot of the conversation.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	m, ok := s.conversation(w, r)
	if !ok {
		return
	}

	sub := newSSESubscriber()
	unsubscribe := m.Subscribe(sub)
	defer unsubscribe()
	defer close(sub.done)

	stream := newSSEStream(w)
	if err := stream.send("snapshot", viewOf(m)); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.events:
			if err := stream.send(string(ev.Kind), ev); err != nil {
				s.logger.Debug("event stream closed", zap.String("conversation_id", m.ID()), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := stream.ping(); err != nil {
				return
			}
		}
	}
}

type streamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// handleQueryStream answers a single question over SSE: a sources event,
// then content chunks until done.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	prompt, tokens, err := s.opts.Query.Stream(r.Context(), query)
	if err != nil {
		s.writeError(w, err)
		return
	}

	stream := newSSEStream(w)
	if err := stream.send("sources", prompt.Documents); err != nil {
		return
	}

	for tok := range tokens {
		if tok.Error != nil {
			kind := entities.GenerationErrorKindOf(tok.Error)
			s.logger.Warn("stream failed", zap.String("kind", kind.String()), zap.Error(tok.Error))
			stream.send("", streamChunk{Done: true, Error: "generation failed", Kind: kind.String()})
			return
		}
		if err := stream.send("", streamChunk{Content: tok.Content, Done: tok.Done}); err != nil {
			// Client went away; the request context cancels the backend.
			return
		}
	}
}
