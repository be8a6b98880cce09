package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dumpkod/sdominanta/internal/identity"
	"github.com/dumpkod/sdominanta/internal/store"
)

// AgentProfile is the public view of a stored profile.
type AgentProfile struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Team      string `json:"team,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
	JoinedAt  string `json:"joined_at"`
}

// AgentResponse represents the agent profile response.
type AgentResponse struct {
	OK    bool         `json:"ok"`
	Agent AgentProfile `json:"agent"`
}

// Agent handles agent profile lookup.
func (h *Handler) Agent(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		h.Error(w, http.StatusNotFound, "profiles not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	if !store.ValidAgentID(id) {
		h.Error(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	agent, err := h.profiles.GetAgent(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "get_agent", err)
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	nickname := agent.Nickname
	if nickname == "" {
		nickname = identity.Nickname(agent.ID)
	}

	h.JSON(w, http.StatusOK, AgentResponse{
		OK: true,
		Agent: AgentProfile{
			ID:        agent.ID,
			Nickname:  nickname,
			Team:      agent.Team,
			PublicKey: agent.PublicKey,
			JoinedAt:  agent.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}
