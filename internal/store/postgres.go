package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs the MessageStore contract with a durable SQL journal:
// one row per (session, seq), append-only, with a unique constraint on
// (session_id, seq) enforcing ErrSeqAlreadyPresent at the database level.
// Intended for deployments that already run Postgres for other durability
// needs and want the message log to share that operational story rather
// than introduce a separate file-based or Redis dependency.
type PostgresStore struct {
	pool      *pgxpool.Pool
	sessionID string
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fix_message_log (
	session_id   TEXT NOT NULL,
	seq          BIGINT NOT NULL,
	bytes        BYTEA NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS fix_session_meta (
	session_id    TEXT PRIMARY KEY,
	last_seq      BIGINT NOT NULL DEFAULT 0,
	creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// OpenPostgresStore connects to Postgres via pgx's pool, ensures the
// journal schema exists, and returns a PostgresStore scoped to sessionID
// (typically the Session Identity rendered as a stable string key).
func OpenPostgresStore(ctx context.Context, dsn, sessionID string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ensuring schema: %w", err)
	}

	s := &PostgresStore{pool: pool, sessionID: sessionID}
	if _, err := pool.Exec(ctx,
		`INSERT INTO fix_session_meta (session_id) VALUES ($1) ON CONFLICT (session_id) DO NOTHING`,
		sessionID,
	); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: seeding session metadata: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Append(ctx context.Context, seq uint64, bytes []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lastSeq int64
	if err := tx.QueryRow(ctx,
		`SELECT last_seq FROM fix_session_meta WHERE session_id = $1 FOR UPDATE`,
		s.sessionID,
	).Scan(&lastSeq); err != nil {
		return fmt.Errorf("store: locking session metadata: %w", err)
	}

	if seq <= uint64(lastSeq) {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM fix_message_log WHERE session_id=$1 AND seq=$2)`,
			s.sessionID, int64(seq),
		).Scan(&exists); err != nil {
			return fmt.Errorf("store: checking existing record: %w", err)
		}
		if exists {
			return ErrSeqAlreadyPresent
		}
		return ErrSeqOutOfOrder
	}
	if seq != uint64(lastSeq)+1 {
		return ErrSeqOutOfOrder
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO fix_message_log (session_id, seq, bytes) VALUES ($1, $2, $3)`,
		s.sessionID, int64(seq), bytes,
	); err != nil {
		return fmt.Errorf("store: inserting record: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE fix_session_meta SET last_seq = $2 WHERE session_id = $1`,
		s.sessionID, int64(seq),
	); err != nil {
		return fmt.Errorf("store: updating last_seq: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetRange(ctx context.Context, from, toInclusive uint64) ([]Record, error) {
	to := toInclusive
	if to == 0 {
		var err error
		to, err = s.LastSeq(ctx)
		if err != nil {
			return nil, err
		}
	}
	if from == 0 {
		from = 1
	}

	rows, err := s.pool.Query(ctx,
		`SELECT seq, bytes FROM fix_message_log
		 WHERE session_id = $1 AND seq BETWEEN $2 AND $3
		 ORDER BY seq ASC`,
		s.sessionID, int64(from), int64(to),
	)
	if err != nil {
		return nil, fmt.Errorf("store: querying range: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, to-from+1)
	expected := from
	for rows.Next() {
		var seq int64
		var bytes []byte
		if err := rows.Scan(&seq, &bytes); err != nil {
			return nil, fmt.Errorf("store: scanning record: %w", err)
		}
		if uint64(seq) != expected {
			return nil, fmt.Errorf("%w: sequence %d missing", ErrGap, expected)
		}
		out = append(out, Record{Seq: uint64(seq), Bytes: bytes})
		expected++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating range: %w", err)
	}
	if expected != to+1 {
		return nil, fmt.Errorf("%w: sequence %d missing", ErrGap, expected)
	}
	return out, nil
}

func (s *PostgresStore) ResetTo(ctx context.Context, seq uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM fix_message_log WHERE session_id = $1`, s.sessionID); err != nil {
		return fmt.Errorf("store: clearing log: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE fix_session_meta SET last_seq = $2, creation_time = now() WHERE session_id = $1`,
		s.sessionID, int64(seq)-1,
	); err != nil {
		return fmt.Errorf("store: resetting metadata: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) LastSeq(ctx context.Context) (uint64, error) {
	var lastSeq int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_seq FROM fix_session_meta WHERE session_id = $1`, s.sessionID,
	).Scan(&lastSeq)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: reading last_seq: %w", err)
	}
	return uint64(lastSeq), nil
}

func (s *PostgresStore) CreationTime(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT creation_time FROM fix_session_meta WHERE session_id = $1`, s.sessionID,
	).Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: reading creation_time: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
