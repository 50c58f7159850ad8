package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ppiankov/resubmit/internal/model"
	embedsql "github.com/ppiankov/resubmit/internal/sql"
)

// PostgresStore keeps the decision log in resubmit.decisions. The table
// only ever receives INSERTs; a trigger rejects updates and deletes.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPool creates a pgxpool and verifies connectivity
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// ApplyMigrations runs all embedded SQL migrations in filename order.
// All DDL is idempotent.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	entries, err := fs.ReadDir(embedsql.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := fs.ReadFile(embedsql.Migrations, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		log.Debug().Str("migration", name).Msg("applying migration")
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	log.Info().Int("count", len(entries)).Msg("decision store migrations applied")
	return nil
}

// NewPostgresStore connects to dsn and applies migrations
func NewPostgresStore(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresStore, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

// Load returns every decision in insertion order
func (s *PostgresStore) Load(ctx context.Context) ([]model.EligibilityDecision, error) {
	rows, err := s.pool.Query(ctx, embedsql.LoadDecisions)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []model.EligibilityDecision
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var d model.EligibilityDecision
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

// Append inserts d; the commit makes it durable
func (s *PostgresStore) Append(ctx context.Context, d model.EligibilityDecision) error {
	id, err := uuid.Parse(d.DecisionID)
	if err != nil {
		return fmt.Errorf("decision id: %w", err)
	}
	var supersedes *uuid.UUID
	if d.Supersedes != "" {
		sid, err := uuid.Parse(d.Supersedes)
		if err != nil {
			return fmt.Errorf("supersedes id: %w", err)
		}
		supersedes = &sid
	}

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	_, err = s.pool.Exec(ctx, embedsql.InsertDecision,
		id,
		d.ClaimID,
		string(d.Eligibility),
		supersedes,
		d.InputFingerprint,
		d.PolicyVersion,
		d.RulesetVersion,
		d.Inference.ModelVersion,
		d.Inference.Score,
		d.DecidedAt,
		body,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
