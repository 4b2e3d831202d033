package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/medbot/internal/memory"
)

type TurnRecord struct {
	SessionID   string
	Turn        int
	Phase       string
	PatientText string
	Reply       string
	Failed      bool
	CreatedAt   time.Time
}

// WriteTurn archives one counted turn, failed turns included.
func (s *Store) WriteTurn(ctx context.Context, rec TurnRecord) (uuid.UUID, error) {
	id := uuid.New()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consultation_turns (id, session_id, turn, phase, patient_text, reply, failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, rec.SessionID, rec.Turn, rec.Phase, rec.PatientText, rec.Reply, rec.Failed, createdAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert turn: %w", err)
	}
	return id, nil
}

// WritePatientSummary archives the structured summary produced on a summary turn.
func (s *Store) WritePatientSummary(ctx context.Context, sessionID string, turn int, narrative string, summary memory.PatientSummary) (uuid.UUID, error) {
	doc, err := json.Marshal(summary)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal summary: %w", err)
	}
	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO patient_summaries (id, session_id, turn, narrative, summary, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, now())`,
		id, sessionID, turn, narrative, string(doc),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert patient summary: %w", err)
	}
	return id, nil
}
