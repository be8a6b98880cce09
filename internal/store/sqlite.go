package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dumpkod/sdominanta/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/sdominanta.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/sdominanta.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL DEFAULT '',
		team TEXT NOT NULL DEFAULT '',
		public_key TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_team ON agents(team);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertAgent creates or updates an agent profile. Empty fields never
// overwrite stored ones.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, nickname, team, public_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nickname   = COALESCE(NULLIF(excluded.nickname, ''), agents.nickname),
			team       = COALESCE(NULLIF(excluded.team, ''), agents.team),
			public_key = COALESCE(NULLIF(excluded.public_key, ''), agents.public_key),
			updated_at = excluded.updated_at
	`, agent.ID, agent.Nickname, agent.Team, agent.PublicKey, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetAgent(ctx, agent.ID)
}

// GetAgent retrieves an agent profile by id.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, nickname, team, public_key, created_at, updated_at
		FROM agents WHERE id = ?
	`, id).Scan(
		&agent.ID,
		&agent.Nickname,
		&agent.Team,
		&agent.PublicKey,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

// CountAgents returns the number of stored profiles.
func (s *SQLiteStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}
