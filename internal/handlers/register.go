package handlers

import (
	"net/http"

	"github.com/dumpkod/sdominanta/internal/metrics"
	"github.com/dumpkod/sdominanta/internal/models"
)

// maxPublicKeyLen bounds the public key kept in a profile.
const maxPublicKeyLen = 512

// RegisterRequest represents the registration request body. Every field is
// optional.
type RegisterRequest struct {
	Nickname  string `json:"nickname"`
	Team      string `json:"team"`
	PublicKey string `json:"public_key"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	OK       bool   `json:"ok"`
	AgentID  string `json:"agent_id"`
	Nickname string `json:"nickname"`
}

// Register resolves the caller's identity and pins it with a cookie.
// When a profile store is configured the optional fields are saved too.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	if len(req.PublicKey) > maxPublicKeyLen {
		h.Error(w, http.StatusBadRequest, "public_key too long")
		return
	}

	res := h.resolver.ResolveRequest(r, req.PublicKey)
	metrics.IdentitiesResolved.WithLabelValues(string(res.Source)).Inc()
	metrics.AgentsRegistered.Inc()

	// Register always (re)issues the cookie, whatever rule matched.
	http.SetCookie(w, h.resolver.Cookie(res.ID))

	nickname := res.Nickname
	if name := sanitizeName(req.Nickname); name != "" {
		nickname = name
	}

	if h.profiles != nil {
		agent, err := h.profiles.UpsertAgent(r.Context(), &models.Agent{
			ID:        res.ID,
			Nickname:  sanitizeName(req.Nickname),
			Team:      sanitizeName(req.Team),
			PublicKey: req.PublicKey,
		})
		if err != nil {
			h.storeError(w, r, "upsert_agent", err)
			return
		}
		if agent.Nickname != "" {
			nickname = agent.Nickname
		}
	}

	h.logger.Info().
		Str("agent_id", res.ID).
		Str("source", string(res.Source)).
		Bool("new", res.IsNew).
		Msg("agent registered")

	h.JSON(w, http.StatusOK, RegisterResponse{
		OK:       true,
		AgentID:  res.ID,
		Nickname: nickname,
	})
}

