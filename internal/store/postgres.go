package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dumpkod/sdominanta/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			nickname TEXT NOT NULL DEFAULT '',
			team TEXT NOT NULL DEFAULT '',
			public_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_agents_team ON agents(team);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertAgent creates or updates an agent profile. Empty fields never
// overwrite stored ones.
func (s *PostgresStore) UpsertAgent(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	out := &models.Agent{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agents (id, nickname, team, public_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			nickname   = COALESCE(NULLIF(EXCLUDED.nickname, ''), agents.nickname),
			team       = COALESCE(NULLIF(EXCLUDED.team, ''), agents.team),
			public_key = COALESCE(NULLIF(EXCLUDED.public_key, ''), agents.public_key),
			updated_at = now()
		RETURNING id, nickname, team, public_key, created_at, updated_at
	`, agent.ID, agent.Nickname, agent.Team, agent.PublicKey).Scan(
		&out.ID,
		&out.Nickname,
		&out.Team,
		&out.PublicKey,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAgent retrieves an agent profile by id.
func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, nickname, team, public_key, created_at, updated_at
		FROM agents WHERE id = $1
	`, id).Scan(
		&agent.ID,
		&agent.Nickname,
		&agent.Team,
		&agent.PublicKey,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

// CountAgents returns the number of stored profiles.
func (s *PostgresStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}
