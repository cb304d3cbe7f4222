package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// Schema is the SQL DDL for the run tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS storyvoice_runs (
    id          TEXT PRIMARY KEY,
    source      TEXT NOT NULL DEFAULT '',
    characters  JSONB NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS storyvoice_assignments (
    run_id          TEXT NOT NULL REFERENCES storyvoice_runs(id) ON DELETE CASCADE,
    sentence_index  INTEGER NOT NULL,
    text            TEXT NOT NULL,
    speaker         TEXT NOT NULL,
    voice_id        TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, sentence_index)
);
CREATE INDEX IF NOT EXISTS idx_storyvoice_runs_created ON storyvoice_runs(created_at DESC);
`

// assignmentColumns is the COPY column order for storyvoice_assignments.
var assignmentColumns = []string{"run_id", "sentence_index", "text", "speaker", "voice_id"}

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Characters
// are stored as JSONB on the run row; assignments get one row per sentence
// and are written with COPY.
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling [PostgresStore.Migrate]
// to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects a pool to dsn, verifies it, and applies [Schema].
// Close the returned store to release the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	s := &PostgresStore{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool opened by [OpenPostgres]. It is a no-op for
// stores created with [NewPostgresStore].
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies the database answers queries.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Migrate executes the [Schema] DDL against the database, creating the run
// tables and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save implements [Store]. The run row and its assignments are replaced in
// one transaction.
func (s *PostgresStore) Save(ctx context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return err
	}
	charsJSON, err := json.Marshal(emptyCharacters(r.Characters))
	if err != nil {
		return fmt.Errorf("store: marshal characters: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO storyvoice_runs (id, source, characters)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			characters = EXCLUDED.characters,
			updated_at = now()
		RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, upsert, r.ID, r.Source, charsJSON).Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		return fmt.Errorf("store: save run %q: %w", r.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM storyvoice_assignments WHERE run_id = $1`, r.ID); err != nil {
		return fmt.Errorf("store: clear assignments %q: %w", r.ID, err)
	}
	if len(r.Assignments) > 0 {
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"storyvoice_assignments"},
			assignmentColumns,
			pgx.CopyFromSlice(len(r.Assignments), func(i int) ([]any, error) {
				a := r.Assignments[i]
				return []any{r.ID, a.SentenceIndex, a.Text, a.Speaker, a.VoiceID}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("store: copy assignments %q: %w", r.ID, err)
		}
		if int(n) != len(r.Assignments) {
			return fmt.Errorf("store: copy assignments %q: wrote %d of %d rows", r.ID, n, len(r.Assignments))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Run, error) {
	const query = `
		SELECT id, source, characters, created_at, updated_at
		FROM storyvoice_runs
		WHERE id = $1`

	var r Run
	var charsJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(&r.ID, &r.Source, &charsJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get %q: %w", id, err)
	}
	if err := json.Unmarshal(charsJSON, &r.Characters); err != nil {
		return nil, fmt.Errorf("store: unmarshal characters: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT sentence_index, text, speaker, voice_id
		FROM storyvoice_assignments
		WHERE run_id = $1
		ORDER BY sentence_index`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get assignments %q: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var a types.SpeakerAssignment
		if err := rows.Scan(&a.SentenceIndex, &a.Text, &a.Speaker, &a.VoiceID); err != nil {
			return nil, fmt.Errorf("store: scan assignment: %w", err)
		}
		r.Assignments = append(r.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get assignments %q: %w", id, err)
	}
	return &r, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context) ([]Run, error) {
	const query = `
		SELECT id, source, characters, created_at, updated_at
		FROM storyvoice_runs
		ORDER BY created_at DESC, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var charsJSON []byte
		if err := rows.Scan(&r.ID, &r.Source, &charsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		if err := json.Unmarshal(charsJSON, &r.Characters); err != nil {
			return nil, fmt.Errorf("store: unmarshal characters: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return runs, nil
}

// Delete implements [Store]. Assignments are removed by the cascading
// foreign key.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM storyvoice_runs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	return nil
}

// emptyCharacters returns cs if non-nil, otherwise an empty non-nil slice so
// the column holds "[]" instead of "null".
func emptyCharacters(cs []types.Character) []types.Character {
	if cs == nil {
		return []types.Character{}
	}
	return cs
}
