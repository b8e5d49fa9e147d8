package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/classcam/internal/config"
	"github.com/your-org/classcam/internal/facedb"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS facedb_snapshots (
	id       SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	payload  JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS identity_centroids (
	external_id   TEXT PRIMARY KEY,
	person_id     TEXT NOT NULL,
	section       TEXT NOT NULL,
	name          TEXT NOT NULL,
	centroid      vector NOT NULL,
	registered_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS identity_centroids_section_idx ON identity_centroids (section);
`

// PostgresStore keeps the face database snapshot as a JSONB row and mirrors
// every centroid into a pgvector column for diagnostics queries.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	return NewPostgresStoreDSN(ctx, cfg.DSN(), cfg.MaxConns)
}

// NewPostgresStoreDSN connects with an explicit connection string.
func NewPostgresStoreDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the extension and tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load reads the stored snapshot.
func (s *PostgresStore) Load(ctx context.Context) (*facedb.Snapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM facedb_snapshots WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, facedb.ErrNoSnapshot
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap facedb.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save replaces the snapshot and the centroid mirror in one transaction.
func (s *PostgresStore) Save(ctx context.Context, snap *facedb.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO facedb_snapshots (id, payload, saved_at) VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`,
		json.RawMessage(payload))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM identity_centroids`); err != nil {
		return fmt.Errorf("clear centroids: %w", err)
	}

	batch := &pgx.Batch{}
	for section, members := range snap.Sections {
		for personID, rec := range members {
			if len(rec.Centroid) == 0 {
				continue
			}
			var registered *time.Time
			if !rec.Metadata.RegisteredAt.IsZero() {
				t := rec.Metadata.RegisteredAt
				registered = &t
			}
			batch.Queue(
				`INSERT INTO identity_centroids (external_id, person_id, section, name, centroid, registered_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				rec.ExternalID, personID, section, rec.Name, pgvector.NewVector(rec.Centroid), registered)
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert centroids: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// CentroidMatch is one row of a nearest-centroid query.
type CentroidMatch struct {
	ExternalID string  `json:"external_id"`
	PersonID   string  `json:"person_id"`
	Name       string  `json:"name"`
	Section    string  `json:"section"`
	Similarity float32 `json:"similarity"`
}

// NearestCentroids ranks mirrored centroids by cosine similarity to embedding.
func (s *PostgresStore) NearestCentroids(ctx context.Context, embedding []float32, section string, limit int) ([]CentroidMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	var query string
	var args []interface{}

	if section != "" {
		query = `
			SELECT external_id, person_id, name, section, 1 - (centroid <=> $1) AS score
			FROM identity_centroids
			WHERE section = $2
			ORDER BY centroid <=> $1
			LIMIT $3`
		args = []interface{}{vec, section, limit}
	} else {
		query = `
			SELECT external_id, person_id, name, section, 1 - (centroid <=> $1) AS score
			FROM identity_centroids
			ORDER BY centroid <=> $1
			LIMIT $2`
		args = []interface{}{vec, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest centroids: %w", err)
	}
	defer rows.Close()

	var matches []CentroidMatch
	for rows.Next() {
		var m CentroidMatch
		if err := rows.Scan(&m.ExternalID, &m.PersonID, &m.Name, &m.Section, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan centroid match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CountCentroids returns the number of mirrored centroids.
func (s *PostgresStore) CountCentroids(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM identity_centroids`).Scan(&n)
	return n, err
}
