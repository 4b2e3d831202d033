// Package memory keeps the rolling message window and the structured patient
// context for a single consultation.
package memory

import (
	"strings"
	"time"

	"github.com/MikeSquared-Agency/medbot/internal/extractor"
)

const (
	DefaultWindow = 10

	recentContextMessages = 6
	summarySymptoms       = 3
	summaryTimeline       = 2
)

// Store is not safe for concurrent use; the owning session serialises access.
type Store struct {
	window   int // pairs
	messages []Message
	total    int // messages added since the last reset, including evicted ones
	patient  *extractor.PatientContext
	now      func() time.Time
}

type Option func(*Store)

// WithClock overrides time.Now for timestamps and severity keys.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore keeps the last window exchanges (2*window messages).
func NewStore(window int, opts ...Option) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	s := &Store{window: window, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// AddInteraction appends the exchange to the window, evicting the oldest pairs
// past capacity, then extracts facts from the patient text only.
func (s *Store) AddInteraction(userText, assistantText string) extractor.Match {
	now := s.now()
	s.messages = append(s.messages,
		Message{Role: RolePatient, Content: userText, CreatedAt: now},
		Message{Role: RoleDoctor, Content: assistantText, CreatedAt: now},
	)
	s.total += 2
	if limit := 2 * s.window; len(s.messages) > limit {
		s.messages = append([]Message(nil), s.messages[len(s.messages)-limit:]...)
	}
	return extractor.Extract(userText, s.patient, now)
}

// RecentContext renders the last six window messages as Patient/Doctor lines.
func (s *Store) RecentContext() string {
	msgs := s.messages
	if len(msgs) > recentContextMessages {
		msgs = msgs[len(msgs)-recentContextMessages:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RolePatient:
			lines = append(lines, "Patient: "+m.Content)
		case RoleDoctor:
			lines = append(lines, "Doctor: "+m.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// PatientSummary projects the patient context. It never mutates the store and
// the returned value shares no memory with it.
func (s *Store) PatientSummary() PatientSummary {
	scores := make(map[string]int, len(s.patient.SeverityScores))
	for k, v := range s.patient.SeverityScores {
		scores[k] = v
	}
	return PatientSummary{
		ConversationTurns: s.total / 2,
		KeySymptoms:       tail(s.patient.Symptoms, summarySymptoms),
		TimelineInfo:      tail(s.patient.Timeline, summaryTimeline),
		Medications:       tail(s.patient.Medications, len(s.patient.Medications)),
		Allergies:         tail(s.patient.Allergies, len(s.patient.Allergies)),
		SeverityScores:    scores,
	}
}

// Messages returns a copy of the current window.
func (s *Store) Messages() []Message {
	return append([]Message(nil), s.messages...)
}

// Patient returns a deep copy of the patient context.
func (s *Store) Patient() extractor.PatientContext {
	p := *s.patient
	p.Symptoms = tail(p.Symptoms, len(p.Symptoms))
	p.Timeline = tail(p.Timeline, len(p.Timeline))
	p.Medications = tail(p.Medications, len(p.Medications))
	p.Allergies = tail(p.Allergies, len(p.Allergies))
	p.SeverityScores = make(map[string]int, len(s.patient.SeverityScores))
	for k, v := range s.patient.SeverityScores {
		p.SeverityScores[k] = v
	}
	return p
}

// Reset clears the window and starts a fresh patient context.
func (s *Store) Reset() {
	s.messages = nil
	s.total = 0
	s.patient = extractor.NewPatientContext(s.now())
}

func tail(list []string, n int) []string {
	if n > len(list) {
		n = len(list)
	}
	out := make([]string, n)
	copy(out, list[len(list)-n:])
	return out
}
