package consultation

import (
	"context"
	"errors"
	"time"

	"github.com/MikeSquared-Agency/medbot/internal/memory"
	"github.com/MikeSquared-Agency/medbot/internal/prompt"
)

// ErrEmptyInput is returned for blank utterances. No turn is counted.
var ErrEmptyInput = errors.New("empty utterance")

// Exchange is one entry of the user-visible history.
type Exchange = prompt.Exchange

// Budgets are the per-call-site token limits and the shared temperature.
type Budgets struct {
	Gathering   int
	Summary     int
	Advice      int
	Temperature float64
}

func DefaultBudgets() Budgets {
	return Budgets{Gathering: 256, Summary: 500, Advice: 400, Temperature: 0.7}
}

// TurnResult describes one handled turn.
type TurnResult struct {
	Turn   int
	Phase  Phase
	Reply  string
	Failed bool
}

// TurnEvent is reported to the Observer after every counted turn.
type TurnEvent struct {
	SessionID   string
	Turn        int
	Phase       Phase
	PatientText string
	Reply       string
	Failed      bool
	Err         error

	// Set on successful summary turns only.
	Narrative      string
	PatientSummary *memory.PatientSummary

	At time.Time
}

// Observer receives completed turns. It runs after the session lock is
// released and must not call back into the same session.
type Observer interface {
	TurnCompleted(ctx context.Context, ev TurnEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev TurnEvent)

func (f ObserverFunc) TurnCompleted(ctx context.Context, ev TurnEvent) { f(ctx, ev) }
