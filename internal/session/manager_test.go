package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/medbot/internal/consultation"
	"github.com/MikeSquared-Agency/medbot/internal/llm"
)

func echoFactory(opts ...consultation.Option) Factory {
	gen := llm.GeneratorFunc(func(_ context.Context, _ string, _ int, _ float64) (string, error) {
		return "ok", nil
	})
	return func(id string) *consultation.Session {
		return consultation.New(id, gen, opts...)
	}
}

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute, echoFactory())
	s := m.Create()
	if s.ID() == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Fatalf("Get() returned a different session")
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	if _, err := m.End(s.ID()); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after End error = %v, want ErrNotFound", err)
	}
	if _, err := m.End(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second End() error = %v, want ErrNotFound", err)
	}
}

func TestManagerSessionsAreIndependent(t *testing.T) {
	m := NewManager(time.Minute, echoFactory())
	a, b := m.Create(), m.Create()

	a.HandleTurn(context.Background(), "I have a headache")

	if a.TurnCount() != 1 || b.TurnCount() != 0 {
		t.Fatalf("turn counts leaked across sessions: a=%d b=%d", a.TurnCount(), b.TurnCount())
	}
	if len(b.PatientSummary().KeySymptoms) != 0 {
		t.Fatalf("patient context leaked across sessions")
	}
}

func TestManagerChangeHook(t *testing.T) {
	m := NewManager(time.Minute, echoFactory())
	var counts []int
	m.SetChangeHook(func(active int) { counts = append(counts, active) })

	s := m.Create()
	m.Create()
	m.End(s.ID())

	want := []int{1, 2, 1}
	if len(counts) != len(want) {
		t.Fatalf("change hook calls = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("change hook calls = %v, want %v", counts, want)
		}
	}
}

func TestManagerEndHook(t *testing.T) {
	m := NewManager(time.Minute, echoFactory())
	var ended []string
	m.SetEndHook(func(s *consultation.Session) { ended = append(ended, s.ID()) })

	s := m.Create()
	m.End(s.ID())
	m.End(s.ID())

	if len(ended) != 1 || ended[0] != s.ID() {
		t.Fatalf("ended = %v, want [%s]", ended, s.ID())
	}
}

func TestManagerExpireInactive(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager(10*time.Minute, echoFactory(consultation.WithClock(func() time.Time { return base })))

	var expired []string
	m.SetExpireHook(func(s *consultation.Session) { expired = append(expired, s.ID()) })
	s := m.Create()

	m.expireInactive(base.Add(5 * time.Minute))
	if len(expired) != 0 {
		t.Fatalf("session expired early")
	}

	m.expireInactive(base.Add(10 * time.Minute))
	if len(expired) != 1 || expired[0] != s.ID() {
		t.Fatalf("expired = %v, want [%s]", expired, s.ID())
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManagerKeepsBusySessions(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	started := make(chan struct{})
	release := make(chan struct{})
	gen := llm.GeneratorFunc(func(context.Context, string, int, float64) (string, error) {
		close(started)
		<-release
		return "ok", nil
	})
	m := NewManager(10*time.Minute, func(id string) *consultation.Session {
		return consultation.New(id, gen, consultation.WithClock(func() time.Time { return base }))
	})
	s := m.Create()

	done := make(chan struct{})
	go func() {
		s.HandleTurn(context.Background(), "I feel faint")
		close(done)
	}()
	<-started

	m.expireInactive(base.Add(time.Hour))
	if _, err := m.Get(s.ID()); err != nil {
		t.Fatalf("session with a turn in flight was expired: %v", err)
	}

	close(release)
	<-done
	m.expireInactive(base.Add(time.Hour))
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("idle session should expire once the turn is done, got %v", err)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30*time.Millisecond, echoFactory())
	s := m.Create()

	var mu sync.Mutex
	done := false
	m.SetExpireHook(func(*consultation.Session) {
		mu.Lock()
		done = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !done {
		t.Fatalf("expire hook was not called")
	}
}
