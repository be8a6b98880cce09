package handlers

import (
	"net/http"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	OK          bool  `json:"ok"`
	TotalAgents int64 `json:"total_agents"`
}

// Stats returns the number of registered profiles.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		h.JSON(w, http.StatusOK, StatsResponse{OK: true})
		return
	}

	total, err := h.profiles.CountAgents(r.Context())
	if err != nil {
		h.storeError(w, r, "count_agents", err)
		return
	}
	h.JSON(w, http.StatusOK, StatsResponse{OK: true, TotalAgents: total})
}
