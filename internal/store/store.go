package store

import (
	"context"
	"errors"
	"regexp"

	"github.com/dumpkod/sdominanta/internal/models"
)

var (
	// ErrInvalidRecipient is returned for an empty or malformed agent id.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrMailboxEmpty is returned by TakeOne when nothing is waiting.
	ErrMailboxEmpty = errors.New("mailbox empty")
)

// agentIDPattern keeps ids free of Redis glob metacharacters and of the
// ':' key separator.
var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidAgentID reports whether id can address a mailbox.
func ValidAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// ProfileStore persists optional agent profiles.
// Both PostgresStore and SQLiteStore implement this interface.
type ProfileStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// UpsertAgent creates the profile or updates its non-empty fields.
	UpsertAgent(ctx context.Context, agent *models.Agent) (*models.Agent, error)
	// GetAgent returns nil, nil when no profile exists.
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	CountAgents(ctx context.Context) (int64, error)
}
