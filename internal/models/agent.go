package models

import (
	"time"
)

// Agent is the optional profile an agent registers alongside its
// pseudonymous id. Profiles are only persisted when a profile database is
// configured; the id itself never depends on one.
type Agent struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	Team      string    `json:"team,omitempty"`
	PublicKey string    `json:"public_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
