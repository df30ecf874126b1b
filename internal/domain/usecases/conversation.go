package usecases

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// DefaultFallbackMessage replaces the answer of a failed turn.
const DefaultFallbackMessage = "I apologize, but I'm having trouble processing your request right now. Please check your API configuration and try again."

var errStreamIncomplete = errors.New("stream ended without completion")

// ConversationOptions configures a ConversationManager.
type ConversationOptions struct {
	ID              string // generated when empty
	Streaming       bool   // use GenerateStream instead of Generate
	Greeting        string // seed assistant message, omitted when empty
	FallbackMessage string // defaults to DefaultFallbackMessage

	// RetryAttempts is the number of extra generation attempts after a
	// failure. Zero means a single attempt per turn. Streams are only
	// retried when nothing reached subscribers yet.
	RetryAttempts int
	RetryDelay    time.Duration

	Observer ports.TurnObserver // optional
	OnClose  func()             // runs once when the conversation is closed
}

// ConversationManager owns one conversation: its history, its status and the
// single in-flight turn driving retrieval, assembly and generation.
type ConversationManager struct {
	id        string
	retriever ports.Retriever
	assembler *ContextAssembler
	generator ports.GenerationClient
	logger    *zap.Logger
	opts      ConversationOptions
	events    *dispatcher

	mu      sync.Mutex
	history []entities.Message
	status  entities.Status
	turn    *turn // nil when Idle
	closed  bool
	wg      sync.WaitGroup
}

type turn struct {
	ctx     context.Context
	cancel  context.CancelFunc
	query   string // trimmed, as recorded in history
	raw     string // as submitted, used for retrieval
	started time.Time
	done    chan struct{}

	retrieved   int
	promptChars int
	attempts    int
}

// NewConversationManager creates an Idle conversation, seeded with the
// greeting when one is configured.
func NewConversationManager(
	retriever ports.Retriever,
	assembler *ContextAssembler,
	generator ports.GenerationClient,
	logger *zap.Logger,
	opts ConversationOptions,
) *ConversationManager {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = DefaultFallbackMessage
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("conversation_id", opts.ID))

	m := &ConversationManager{
		id:        opts.ID,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		logger:    logger,
		opts:      opts,
		events:    newDispatcher(logger),
		status:    entities.StatusIdle,
	}
	if opts.Greeting != "" {
		m.history = append(m.history, newMessage(entities.RoleAssistant, opts.Greeting))
	}
	return m
}

// ID returns the conversation identifier.
func (m *ConversationManager) ID() string { return m.id }

// Status returns the current pipeline status.
func (m *ConversationManager) Status() entities.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// History returns a copy of the conversation so far.
func (m *ConversationManager) History() []entities.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]entities.Message, len(m.history))
	copy(cp, m.history)
	return cp
}

// Subscribe registers s for future notifications and returns a function
// that removes it. Callbacks run on a dedicated goroutine. Once unsubscribe
// returns, s receives no further events apart from a callback already
// running at that moment.
func (m *ConversationManager) Subscribe(s ports.Subscriber) (unsubscribe func()) {
	return m.events.subscribe(s)
}

// Submit starts a turn for query and returns immediately. It fails with
// entities.ErrBusy while another turn is in flight, entities.ErrEmptyQuery
// for blank input and entities.ErrClosed after Close. Rejections leave the
// history untouched.
func (m *ConversationManager) Submit(query string) error {
	raw := query
	query = normalizeSubmission(query)
	if query == "" {
		m.reject(entities.ErrEmptyQuery)
		return entities.ErrEmptyQuery
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return entities.ErrClosed
	}
	if m.status != entities.StatusIdle {
		m.mu.Unlock()
		m.reject(entities.ErrBusy)
		return entities.ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &turn{
		ctx:     ctx,
		cancel:  cancel,
		query:   query,
		raw:     raw,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	msg := newMessage(entities.RoleUser, query)
	m.history = append(m.history, msg)
	m.turn = t
	m.status = entities.StatusRetrieving
	m.events.publish(messageEvent(msg), statusEvent(entities.StatusRetrieving))
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("turn accepted", zap.Int("query_len", len(query)))
	go m.run(t)
	return nil
}

// Cancel aborts the in-flight turn, if any. No assistant message is
// appended and the status returns to Idle. It reports whether a turn was
// cancelled.
func (m *ConversationManager) Cancel() bool {
	m.mu.Lock()
	report, ok := m.detachLocked()
	m.mu.Unlock()

	if ok {
		m.observe(report, nil)
	}
	return ok
}

// Wait blocks until the in-flight turn, if any, has finished.
func (m *ConversationManager) Wait(ctx context.Context) error {
	m.mu.Lock()
	t := m.turn
	m.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session: the in-flight turn is cancelled, its goroutine
// awaited and pending notifications delivered. Close is idempotent.
func (m *ConversationManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	report, ok := m.detachLocked()
	m.mu.Unlock()

	if ok {
		m.observe(report, nil)
	}
	m.wg.Wait()
	m.events.close()
	if m.opts.OnClose != nil {
		m.opts.OnClose()
	}
}

// detachLocked cancels the current turn and returns to Idle.
func (m *ConversationManager) detachLocked() (ports.TurnReport, bool) {
	t := m.turn
	if t == nil {
		return ports.TurnReport{}, false
	}
	t.cancel()
	m.turn = nil
	m.status = entities.StatusIdle
	m.events.publish(statusEvent(entities.StatusIdle))
	return m.reportLocked(t, ports.TurnCancelled), true
}

func (m *ConversationManager) run(t *turn) {
	defer m.wg.Done()
	defer close(t.done)
	defer t.cancel()

	docs := m.retriever.Retrieve(t.raw)
	m.record(func() { t.retrieved = len(docs) })
	m.logger.Debug("retrieved documents", zap.Strings("document_ids", docs.IDs()))

	if !m.transition(t, entities.StatusGenerating) {
		return
	}

	prompt := m.assembler.Assemble(t.query, docs)
	m.record(func() { t.promptChars = len(prompt.Text) })

	answer, err := m.generate(t, prompt)
	m.finish(t, answer, err)
}

// generate runs up to 1+RetryAttempts attempts.
func (m *ConversationManager) generate(t *turn, prompt entities.Prompt) (string, error) {
	attempts := 0
	for {
		attempts++
		m.record(func() { t.attempts = attempts })
		var (
			answer   string
			streamed bool
			err      error
		)
		if m.opts.Streaming {
			answer, streamed, err = m.stream(t, prompt)
		} else {
			answer, err = m.generator.Generate(t.ctx, prompt)
		}

		if err == nil || t.ctx.Err() != nil || streamed || attempts > m.opts.RetryAttempts {
			return answer, err
		}

		m.logger.Warn("generation attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.String("kind", entities.GenerationErrorKindOf(err).String()),
			zap.Error(err),
		)
		select {
		case <-t.ctx.Done():
			return "", t.ctx.Err()
		case <-time.After(m.opts.RetryDelay):
		}
	}
}

// stream consumes one stream, forwarding deltas. streamed reports whether
// any delta reached subscribers.
func (m *ConversationManager) stream(t *turn, prompt entities.Prompt) (answer string, streamed bool, err error) {
	ch, err := m.generator.GenerateStream(t.ctx, prompt)
	if err != nil {
		return "", false, err
	}
	defer func() {
		// Release the producer if we stopped reading early.
		go func() {
			for range ch {
			}
		}()
	}()

	if !m.transition(t, entities.StatusStreaming) {
		return "", false, context.Canceled
	}

	var sb strings.Builder
	for tok := range ch {
		if tok.Error != nil {
			return "", streamed, tok.Error
		}
		if tok.Content != "" {
			sb.WriteString(tok.Content)
			if !m.emitDelta(t, tok.Content) {
				return "", streamed, context.Canceled
			}
			streamed = true
		}
		if tok.Done {
			return sb.String(), streamed, nil
		}
	}
	return "", streamed, entities.NewGenerationError(entities.GenerationUnknown, errStreamIncomplete)
}

// record updates turn counters that Cancel may read concurrently.
func (m *ConversationManager) record(update func()) {
	m.mu.Lock()
	update()
	m.mu.Unlock()
}

// transition moves the current turn to s. It reports false when t was
// cancelled in the meantime.
func (m *ConversationManager) transition(t *turn, s entities.Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.turn != t {
		return false
	}
	if m.status != s {
		m.status = s
		m.events.publish(statusEvent(s))
	}
	return true
}

func (m *ConversationManager) emitDelta(t *turn, delta string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.turn != t {
		return false
	}
	m.events.publish(deltaEvent(delta))
	return true
}

// finish records the outcome of t unless it was cancelled.
func (m *ConversationManager) finish(t *turn, answer string, err error) {
	m.mu.Lock()
	if m.turn != t {
		m.mu.Unlock()
		return
	}
	m.turn = nil

	var report ports.TurnReport
	if err != nil {
		m.status = entities.StatusFailed
		fallback := newMessage(entities.RoleAssistant, m.opts.FallbackMessage)
		m.history = append(m.history, fallback)
		m.status = entities.StatusIdle
		m.events.publish(
			statusEvent(entities.StatusFailed),
			messageEvent(fallback),
			statusEvent(entities.StatusIdle),
		)
		report = m.reportLocked(t, ports.TurnFailed)
		report.ErrorKind = entities.GenerationErrorKindOf(err)
	} else {
		msg := newMessage(entities.RoleAssistant, answer)
		m.history = append(m.history, msg)
		m.status = entities.StatusIdle
		m.events.publish(messageEvent(msg), statusEvent(entities.StatusIdle))
		report = m.reportLocked(t, ports.TurnCompleted)
	}
	m.mu.Unlock()

	m.observe(report, err)
}

func (m *ConversationManager) reportLocked(t *turn, outcome ports.TurnOutcome) ports.TurnReport {
	return ports.TurnReport{
		ConversationID: m.id,
		Outcome:        outcome,
		Retrieved:      t.retrieved,
		PromptChars:    t.promptChars,
		Attempts:       t.attempts,
		Duration:       time.Since(t.started),
	}
}

func (m *ConversationManager) observe(report ports.TurnReport, err error) {
	fields := []zap.Field{
		zap.String("outcome", string(report.Outcome)),
		zap.Int("retrieved", report.Retrieved),
		zap.Int("attempts", report.Attempts),
		zap.Duration("duration", report.Duration),
	}
	switch report.Outcome {
	case ports.TurnFailed:
		fields = append(fields, zap.String("kind", report.ErrorKind.String()), zap.Error(err))
		m.logger.Warn("turn failed", fields...)
	case ports.TurnCancelled:
		m.logger.Info("turn cancelled", fields...)
	default:
		m.logger.Info("turn completed", fields...)
	}

	if m.opts.Observer != nil {
		m.opts.Observer.TurnFinished(report)
	}
}

func (m *ConversationManager) reject(reason error) {
	m.logger.Debug("submit rejected", zap.Error(reason))
	if m.opts.Observer != nil {
		m.opts.Observer.TurnRejected(m.id, reason)
	}
}

func normalizeSubmission(query string) string {
	return strings.TrimSpace(query)
}

func newMessage(role entities.Role, content string) entities.Message {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return entities.Message{
		ID:        id.String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}
