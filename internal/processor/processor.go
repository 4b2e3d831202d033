// Package processor fans completed consultation turns out to the side
// channels: audit store, event bus, clinician handoff and metrics. None of
// them can fail a turn; errors are logged and dropped.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/medbot/internal/consultation"
	"github.com/MikeSquared-Agency/medbot/internal/hermes"
	"github.com/MikeSquared-Agency/medbot/internal/memory"
	"github.com/MikeSquared-Agency/medbot/internal/session"
	"github.com/MikeSquared-Agency/medbot/internal/slack"
	"github.com/MikeSquared-Agency/medbot/internal/store"
)

const sideChannelTimeout = 15 * time.Second

type TurnWriter interface {
	WriteTurn(ctx context.Context, rec store.TurnRecord) (uuid.UUID, error)
	WritePatientSummary(ctx context.Context, sessionID string, turn int, narrative string, summary memory.PatientSummary) (uuid.UUID, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

type HandoffPoster interface {
	PostHandoff(ctx context.Context, report slack.HandoffReport) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

type TurnMetrics interface {
	ObserveTurn(ev consultation.TurnEvent)
}

type SessionLookup interface {
	Get(sessionID string) (*consultation.Session, error)
}

// Deps lists the optional side channels. Leave a field nil to disable it.
type Deps struct {
	Store    TurnWriter
	Hermes   Publisher
	Slack    HandoffPoster
	Metrics  TurnMetrics
	Sessions SessionLookup
}

// Processor implements consultation.Observer.
type Processor struct {
	deps   Deps
	logger *slog.Logger
	wg     sync.WaitGroup

	mu    sync.Mutex
	lanes map[string]*lane
}

// lane orders the side-channel work of one session. Each dispatch waits for
// the previous one, so the first summary always posts the handoff parent.
type lane struct {
	tail    chan struct{}
	pending int
	ts      string // slack ts of the handoff parent; touched only inside the lane
}

func New(deps Deps, logger *slog.Logger) *Processor {
	return &Processor{
		deps:   deps,
		logger: logger,
		lanes:  make(map[string]*lane),
	}
}

// SetSessions wires the session lookup used by HandleTranscript. The manager
// needs the processor to build sessions, so it is attached after both exist.
func (p *Processor) SetSessions(s SessionLookup) {
	p.deps.Sessions = s
}

// TurnCompleted records metrics inline and runs the I/O side channels in the
// background so the patient reply is never held up by them.
func (p *Processor) TurnCompleted(ctx context.Context, ev consultation.TurnEvent) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveTurn(ev)
	}
	if p.deps.Store == nil && p.deps.Hermes == nil && p.deps.Slack == nil {
		return
	}

	p.mu.Lock()
	l, ok := p.lanes[ev.SessionID]
	if !ok {
		l = &lane{}
		p.lanes[ev.SessionID] = l
	}
	prev, done := l.tail, make(chan struct{})
	l.tail = done
	l.pending++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release(ev.SessionID, l)
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideChannelTimeout)
		defer cancel()
		p.dispatch(ctx, l, ev)
	}()
}

// release drops an idle lane whose session no longer exists, so events that
// arrive after Forget do not leave state behind.
func (p *Processor) release(sessionID string, l *lane) {
	p.mu.Lock()
	l.pending--
	idle := l.pending == 0 && p.lanes[sessionID] == l
	p.mu.Unlock()
	if !idle || p.deps.Sessions == nil {
		return
	}
	if _, err := p.deps.Sessions.Get(sessionID); !errors.Is(err, session.ErrNotFound) {
		return
	}
	p.mu.Lock()
	if l.pending == 0 && p.lanes[sessionID] == l {
		delete(p.lanes, sessionID)
	}
	p.mu.Unlock()
}

// Wait blocks until all in-flight side-channel work has finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Forget drops the lane of a session that has ended. Work already queued on
// it still runs against the detached lane.
func (p *Processor) Forget(sessionID string) {
	p.mu.Lock()
	delete(p.lanes, sessionID)
	p.mu.Unlock()
}

func (p *Processor) dispatch(ctx context.Context, l *lane, ev consultation.TurnEvent) {
	if p.deps.Store != nil {
		p.persist(ctx, ev)
	}
	if p.deps.Hermes != nil {
		p.publish(ev)
	}
	if p.deps.Slack != nil && ev.PatientSummary != nil {
		p.handoff(ctx, l, ev)
	}
}

func (p *Processor) persist(ctx context.Context, ev consultation.TurnEvent) {
	_, err := p.deps.Store.WriteTurn(ctx, store.TurnRecord{
		SessionID:   ev.SessionID,
		Turn:        ev.Turn,
		Phase:       string(ev.Phase),
		PatientText: ev.PatientText,
		Reply:       ev.Reply,
		Failed:      ev.Failed,
		CreatedAt:   ev.At,
	})
	if err != nil {
		p.logger.Error("failed to archive turn", "session_id", ev.SessionID, "turn", ev.Turn, "error", err)
	}

	if ev.PatientSummary == nil {
		return
	}
	if _, err := p.deps.Store.WritePatientSummary(ctx, ev.SessionID, ev.Turn, ev.Narrative, *ev.PatientSummary); err != nil {
		p.logger.Error("failed to archive patient summary", "session_id", ev.SessionID, "turn", ev.Turn, "error", err)
	}
}

func (p *Processor) publish(ev consultation.TurnEvent) {
	err := p.deps.Hermes.Publish(hermes.SubjectTurn, hermes.TurnEvent{
		SessionID:   ev.SessionID,
		Turn:        ev.Turn,
		Phase:       string(ev.Phase),
		PatientText: ev.PatientText,
		Reply:       ev.Reply,
		Failed:      ev.Failed,
		Timestamp:   ev.At,
	})
	if err != nil {
		p.logger.Warn("failed to publish turn event", "session_id", ev.SessionID, "error", err)
	}

	if ev.PatientSummary == nil {
		return
	}
	sum := ev.PatientSummary
	err = p.deps.Hermes.Publish(hermes.SubjectSummary, hermes.SummaryEvent{
		SessionID:      ev.SessionID,
		Turn:           ev.Turn,
		Narrative:      ev.Narrative,
		KeySymptoms:    sum.KeySymptoms,
		TimelineInfo:   sum.TimelineInfo,
		Medications:    sum.Medications,
		Allergies:      sum.Allergies,
		SeverityScores: sum.SeverityScores,
		Timestamp:      ev.At,
	})
	if err != nil {
		p.logger.Warn("failed to publish summary event", "session_id", ev.SessionID, "error", err)
	}
}

// handoff posts the first summary of a session as a new message; later
// summaries of the same session are threaded under it. A failed parent post
// is retried on the next summary turn.
func (p *Processor) handoff(ctx context.Context, l *lane, ev consultation.TurnEvent) {
	if l.ts != "" {
		if err := p.deps.Slack.PostThread(ctx, l.ts, ev.Narrative); err != nil {
			p.logger.Error("slack thread update failed", "session_id", ev.SessionID, "error", err)
		}
		return
	}

	ts, err := p.deps.Slack.PostHandoff(ctx, slack.HandoffReport{
		SessionID: ev.SessionID,
		Turn:      ev.Turn,
		Narrative: ev.Narrative,
		Patient:   *ev.PatientSummary,
	})
	if err != nil {
		p.logger.Error("slack handoff failed", "session_id", ev.SessionID, "error", err)
		return
	}
	l.ts = ts
}

// HandleTranscript is the NATS handler for medbot.transcript.final. Each
// final transcript is handled as a patient turn on the named session.
func (p *Processor) HandleTranscript(subject string, data []byte) {
	var evt hermes.TranscriptFinal
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse transcript event", "subject", subject, "error", err)
		return
	}
	if p.deps.Sessions == nil {
		p.logger.Warn("transcript dropped, no session lookup configured", "session_id", evt.SessionID)
		return
	}

	sess, err := p.deps.Sessions.Get(evt.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			p.logger.Warn("transcript for unknown session", "session_id", evt.SessionID)
			return
		}
		p.logger.Error("session lookup failed", "session_id", evt.SessionID, "error", err)
		return
	}

	res, err := sess.HandleTurn(context.Background(), evt.Text)
	if err != nil {
		p.logger.Debug("transcript skipped", "session_id", evt.SessionID, "error", err)
		return
	}
	p.logger.Info("transcript handled",
		"session_id", evt.SessionID,
		"turn", res.Turn,
		"phase", res.Phase,
		"failed", res.Failed,
	)
}
