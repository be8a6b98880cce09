package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dumpkod/sdominanta/internal/metrics"
	"github.com/dumpkod/sdominanta/internal/models"
	"github.com/dumpkod/sdominanta/internal/store"
)

// HeaderIdempotencyKey carries the optional dedupe token of a send.
const HeaderIdempotencyKey = "Idempotency-Key"

// SendRequest is the body of POST /send and POST /rv/in.
type SendRequest struct {
	To       string          `json:"to"`
	Envelope json.RawMessage `json:"envelope"`
	// TTL in seconds, clamped to [60, 86400]. Absent means the server
	// default; an explicit 0 clamps to 60 like any other short value.
	TTL *int `json:"ttl,omitempty"`
}

// SendResponse is returned for an accepted or duplicate send.
type SendResponse struct {
	OK        bool   `json:"ok"`
	Key       string `json:"key,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// AgentRequest names the mailbox a read operation applies to.
type AgentRequest struct {
	AgentID string `json:"agent_id"`
}

// MessageResponse is one envelope handed to its recipient.
type MessageResponse struct {
	Key      string          `json:"key"`
	Envelope json.RawMessage `json:"envelope"`
	From     string          `json:"from,omitempty"`
	TS       int64           `json:"ts,omitempty"`
}

// DrainResponse is the body of POST /messages.
type DrainResponse struct {
	OK       bool              `json:"ok"`
	Messages []MessageResponse `json:"messages"`
}

// PeekResponse is the body of POST /messages/has and POST /rv/has.
type PeekResponse struct {
	OK    bool `json:"ok"`
	Has   bool `json:"has"`
	Count int  `json:"count"`
}

// TakeResponse is the body of POST /rv/take.
type TakeResponse struct {
	OK    bool `json:"ok"`
	Empty bool `json:"empty,omitempty"`
	*MessageResponse
}

// Send deposits an envelope in the recipient's mailbox.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	if !h.requireMailbox(w) {
		return
	}

	var req SendRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if req.To == "" {
		h.Error(w, http.StatusBadRequest, "to is required")
		return
	}
	if !store.ValidAgentID(req.To) {
		h.Error(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	if len(req.Envelope) == 0 || bytes.Equal(req.Envelope, []byte("null")) {
		h.Error(w, http.StatusBadRequest, "envelope is required")
		return
	}

	sender := h.resolve(w, r, "")
	ctx := r.Context()

	token := r.Header.Get(HeaderIdempotencyKey)
	duplicate, err := h.mailbox.Reserve(ctx, token)
	if err != nil {
		h.storeError(w, r, "reserve", err)
		return
	}
	if duplicate {
		metrics.DuplicateSends.Inc()
		h.logger.Debug().Str("to", req.To).Str("from", sender.ID).Msg("duplicate send suppressed")
		h.JSON(w, http.StatusOK, SendResponse{OK: true, Duplicate: true})
		return
	}

	ttl := h.defaultTTL
	if req.TTL != nil {
		ttl = *req.TTL
	}
	key, err := h.mailbox.Enqueue(ctx, &models.Envelope{
		From: sender.ID,
		To:   req.To,
		Body: req.Envelope,
		TTL:  ttl,
	})
	if err != nil {
		if relErr := h.mailbox.Release(ctx, token); relErr != nil {
			h.logger.Warn().Err(relErr).Msg("failed to release idempotency token")
		}
		if errors.Is(err, store.ErrInvalidRecipient) {
			h.Error(w, http.StatusBadRequest, "invalid agent id")
			return
		}
		h.storeError(w, r, "enqueue", err)
		return
	}

	metrics.EnvelopesEnqueued.Inc()
	h.JSON(w, http.StatusCreated, SendResponse{OK: true, Key: key})
}

// Messages drains every live envelope of an agent.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}

	items, err := h.mailbox.DrainAll(r.Context(), agentID)
	if err != nil && len(items) == 0 {
		h.storeError(w, r, "drain", err)
		return
	}
	if err != nil {
		// The returned items are already deleted; hand them over anyway.
		h.logger.Warn().Err(err).Str("agent_id", agentID).Int("delivered", len(items)).Msg("partial drain")
	}

	messages := make([]MessageResponse, 0, len(items))
	for _, item := range items {
		messages = append(messages, messageResponse(item))
	}
	metrics.EnvelopesDelivered.WithLabelValues("drain").Add(float64(len(messages)))

	h.JSON(w, http.StatusOK, DrainResponse{OK: true, Messages: messages})
}

// Has reports whether an agent has mail, without consuming it.
func (h *Handler) Has(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}

	count, err := h.mailbox.Peek(r.Context(), agentID)
	if err != nil {
		h.storeError(w, r, "peek", err)
		return
	}
	h.JSON(w, http.StatusOK, PeekResponse{OK: true, Has: count > 0, Count: count})
}

// Take pops the oldest envelope of an agent.
func (h *Handler) Take(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}

	item, err := h.mailbox.TakeOne(r.Context(), agentID)
	if errors.Is(err, store.ErrMailboxEmpty) {
		h.JSON(w, http.StatusOK, TakeResponse{OK: true, Empty: true})
		return
	}
	if err != nil {
		h.storeError(w, r, "take", err)
		return
	}

	metrics.EnvelopesDelivered.WithLabelValues("take").Inc()
	msg := messageResponse(*item)
	h.JSON(w, http.StatusOK, TakeResponse{OK: true, MessageResponse: &msg})
}

// agentID decodes and validates the agent_id of a read request.
func (h *Handler) agentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !h.requireMailbox(w) {
		return "", false
	}

	var req AgentRequest
	if !h.decode(w, r, &req, false) {
		return "", false
	}
	if req.AgentID == "" {
		h.Error(w, http.StatusBadRequest, "agent_id is required")
		return "", false
	}
	if !store.ValidAgentID(req.AgentID) {
		h.Error(w, http.StatusBadRequest, "invalid agent id")
		return "", false
	}
	return req.AgentID, true
}

func messageResponse(item models.MailboxItem) MessageResponse {
	return MessageResponse{
		Key:      item.Key,
		Envelope: item.Envelope.Body,
		From:     item.Envelope.From,
		TS:       item.Envelope.Timestamp,
	}
}
