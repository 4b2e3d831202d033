// Package store archives consultation turns and patient summaries in Postgres.
// It is an audit trail only: sessions are never rebuilt from it.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS consultation_turns (
	id           uuid PRIMARY KEY,
	session_id   text NOT NULL,
	turn         integer NOT NULL,
	phase        text NOT NULL,
	patient_text text NOT NULL,
	reply        text NOT NULL,
	failed       boolean NOT NULL DEFAULT false,
	created_at   timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS consultation_turns_session_idx ON consultation_turns (session_id, turn);

CREATE TABLE IF NOT EXISTS patient_summaries (
	id         uuid PRIMARY KEY,
	session_id text NOT NULL,
	turn       integer NOT NULL,
	narrative  text NOT NULL,
	summary    jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS patient_summaries_session_idx ON patient_summaries (session_id);
`

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}
