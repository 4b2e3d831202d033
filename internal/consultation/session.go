// Package consultation drives a patient intake conversation: a few gathering
// turns followed by a summary with general care suggestions.
package consultation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MikeSquared-Agency/medbot/internal/llm"
	"github.com/MikeSquared-Agency/medbot/internal/memory"
	"github.com/MikeSquared-Agency/medbot/internal/prompt"
)

// Session is one consultation. Turns are serialised by an internal lock, so
// concurrent callers queue rather than interleave.
type Session struct {
	id       string
	gen      llm.Generator
	provider string
	budgets  Budgets
	window   int
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	memory    *memory.Store
	turnCount int
	history   []Exchange

	lastActive atomic.Int64 // unix nanos
	inflight   atomic.Int32
}

type Option func(*Session)

func WithBudgets(b Budgets) Option { return func(s *Session) { s.budgets = b } }

// WithWindow sets the memory window size in exchanges.
func WithWindow(k int) Option { return func(s *Session) { s.window = k } }

func WithObserver(o Observer) Option { return func(s *Session) { s.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithProvider names the backend in errors and logs.
func WithProvider(name string) Option { return func(s *Session) { s.provider = name } }

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// New creates a session in its initial state: turn 0, gathering phase, and the
// welcome message as the only history entry.
func New(id string, gen llm.Generator, opts ...Option) *Session {
	s := &Session{
		id:       id,
		gen:      gen,
		provider: "llm",
		budgets:  DefaultBudgets(),
		window:   memory.DefaultWindow,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.memory = memory.NewStore(s.window, memory.WithClock(s.now))
	s.history = []Exchange{{Doctor: prompt.Welcome}}
	s.touch()
	return s
}

func (s *Session) ID() string { return s.id }

// HandleTurn processes one patient utterance. Backend failures are absorbed:
// the turn still counts, the apology is appended to history, memory is left
// untouched and the result is marked Failed. The only error returned is
// ErrEmptyInput.
//
// A backend call, once issued, is not cancelled when ctx is.
func (s *Session) HandleTurn(ctx context.Context, userText string) (TurnResult, error) {
	if strings.TrimSpace(userText) == "" {
		return TurnResult{}, ErrEmptyInput
	}
	ctx = context.WithoutCancel(ctx)

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	s.touch()
	ev := s.runTurn(ctx, userText)
	s.touch()

	if s.observer != nil {
		s.observer.TurnCompleted(ctx, ev)
	}

	return TurnResult{Turn: ev.Turn, Phase: ev.Phase, Reply: ev.Reply, Failed: ev.Failed}, nil
}

// runTurn holds the session lock for the whole turn. The deferred unlock
// keeps the session usable if a panic is recovered further up.
func (s *Session) runTurn(ctx context.Context, userText string) TurnEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turnCount++
	turn := s.turnCount
	phase := PhaseOf(turn)

	s.logger.Info("turn started", "session_id", s.id, "turn", turn, "phase", phase)

	var (
		out outcome
		err error
	)
	switch phase {
	case PhaseGathering:
		out, err = s.gather(ctx, userText)
	default:
		out, err = s.summarize(ctx, userText)
	}

	ev := TurnEvent{
		SessionID:   s.id,
		Turn:        turn,
		Phase:       phase,
		PatientText: userText,
		At:          s.now(),
	}
	if err != nil {
		s.logger.Error("turn failed", "session_id", s.id, "turn", turn, "phase", phase, "error", err)
		s.history = append(s.history, Exchange{Patient: userText, Doctor: prompt.Apology})
		ev.Reply = prompt.Apology
		ev.Failed = true
		ev.Err = err
		return ev
	}

	match := s.memory.AddInteraction(userText, out.reply)
	s.history = append(s.history, Exchange{Patient: userText, Doctor: out.reply})
	s.logger.Info("turn complete",
		"session_id", s.id,
		"turn", turn,
		"phase", phase,
		"extracted", match.Categories,
		"reply", preview(out.reply, 100),
	)
	ev.Reply = out.reply
	ev.Narrative = out.narrative
	ev.PatientSummary = out.summary
	return ev
}

// ProcessTurn is the front-end contract: it returns the cleared input
// placeholder and the updated history. Blank input leaves history unchanged.
func (s *Session) ProcessTurn(ctx context.Context, userText string) (string, []Exchange) {
	_, _ = s.HandleTurn(ctx, userText)
	return "", s.History()
}

// Reset starts the consultation over and returns the new history, which holds
// only the welcome message, plus the cleared input placeholder.
func (s *Session) Reset() ([]Exchange, string) {
	s.mu.Lock()
	s.turnCount = 0
	s.memory.Reset()
	s.history = []Exchange{{Doctor: prompt.Welcome}}
	history := append([]Exchange(nil), s.history...)
	s.mu.Unlock()
	s.touch()

	s.logger.Info("session reset", "session_id", s.id)
	return history, ""
}

func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// Phase is recomputed from the turn count on every call.
func (s *Session) Phase() Phase {
	return PhaseOf(s.TurnCount())
}

func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.history...)
}

func (s *Session) PatientSummary() memory.PatientSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.PatientSummary()
}

// Snapshot reads turn count, history and patient summary under one lock.
func (s *Session) Snapshot() (int, []Exchange, memory.PatientSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount, append([]Exchange(nil), s.history...), s.memory.PatientSummary()
}

// Busy reports whether a turn is running or queued on this session.
func (s *Session) Busy() bool {
	return s.inflight.Load() > 0
}

// LastActivity never blocks on an in-flight turn.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

type outcome struct {
	reply     string
	narrative string
	summary   *memory.PatientSummary
}

func (s *Session) gather(ctx context.Context, userText string) (outcome, error) {
	p := prompt.Build(prompt.GatheringInstruction, s.history, s.memory.RecentContext(), userText)
	reply, err := s.generate(ctx, p, s.budgets.Gathering)
	if err != nil {
		return outcome{}, fmt.Errorf("gathering reply: %w", err)
	}
	return outcome{reply: reply}, nil
}

func (s *Session) summarize(ctx context.Context, userText string) (outcome, error) {
	summaryPrompt := prompt.Build(prompt.SummaryInstruction, s.history, s.memory.RecentContext(), userText)
	narrative, err := s.generate(ctx, summaryPrompt, s.budgets.Summary)
	if err != nil {
		return outcome{}, fmt.Errorf("summary narrative: %w", err)
	}

	patient := s.memory.PatientSummary()
	patientJSON := patient.JSON()
	memoryContext := s.memory.RecentContext()

	advice, err := s.generate(ctx, prompt.Advice(patientJSON, narrative, memoryContext), s.budgets.Advice)
	if err != nil {
		return outcome{}, fmt.Errorf("medication advice: %w", err)
	}

	return outcome{
		reply:     prompt.FinalReply(narrative, advice, patientJSON),
		narrative: narrative,
		summary:   &patient,
	}, nil
}

func (s *Session) generate(ctx context.Context, p string, maxTokens int) (string, error) {
	return llm.Generate(ctx, s.gen, s.provider, p, maxTokens, s.budgets.Temperature)
}

func (s *Session) touch() {
	s.lastActive.Store(s.now().UnixNano())
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
