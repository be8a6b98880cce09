package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/dumpkod/sdominanta/internal/identity"
	"github.com/dumpkod/sdominanta/internal/metrics"
	"github.com/dumpkod/sdominanta/internal/models"
	"github.com/dumpkod/sdominanta/internal/store"
)

// Error codes shared with clients.
const (
	errStoreUnavailable    = "store_unavailable"
	errServerNotConfigured = "server_not_configured"
)

// Mailbox is the envelope store the gateway writes to and drains from.
// *store.RedisStore implements it.
type Mailbox interface {
	Ping(ctx context.Context) error
	Reserve(ctx context.Context, token string) (duplicate bool, err error)
	Release(ctx context.Context, token string) error
	Enqueue(ctx context.Context, env *models.Envelope) (string, error)
	Peek(ctx context.Context, recipient string) (int, error)
	DrainAll(ctx context.Context, recipient string) ([]models.MailboxItem, error)
	TakeOne(ctx context.Context, recipient string) (*models.MailboxItem, error)
}

// Options configures a Handler. Mailbox and Profiles may be left nil when
// the corresponding backend is not configured.
type Options struct {
	Mailbox    Mailbox
	Profiles   store.ProfileStore
	Resolver   *identity.Resolver
	Logger     zerolog.Logger
	DefaultTTL int
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	mailbox    Mailbox
	profiles   store.ProfileStore
	resolver   *identity.Resolver
	logger     zerolog.Logger
	defaultTTL int
}

// NewHandler creates a new Handler.
func NewHandler(opts Options) *Handler {
	if opts.Resolver == nil {
		opts.Resolver = identity.NewResolver("", false)
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 3600
	}
	return &Handler{
		mailbox:    opts.Mailbox,
		profiles:   opts.Profiles,
		resolver:   opts.Resolver,
		logger:     opts.Logger,
		defaultTTL: opts.DefaultTTL,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]any{"ok": false, "error": message})
}

// storeError logs err and reports the store as unavailable.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("store operation failed")
	h.Error(w, http.StatusServiceUnavailable, errStoreUnavailable)
}

// requireMailbox answers server_not_configured when no mailbox store is
// wired in.
func (h *Handler) requireMailbox(w http.ResponseWriter) bool {
	if h.mailbox == nil {
		h.Error(w, http.StatusInternalServerError, errServerNotConfigured)
		return false
	}
	return true
}

// decode reads a JSON body into dst. An empty body is accepted when
// allowEmpty is set and leaves dst untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	h.Error(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

// resolve identifies the caller and issues the identity cookie when the id
// was derived for this request.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, publicKey string) identity.Result {
	res := h.resolver.ResolveRequest(r, publicKey)
	metrics.IdentitiesResolved.WithLabelValues(string(res.Source)).Inc()
	if res.Cookie != nil {
		http.SetCookie(w, res.Cookie)
	}
	return res
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if utf8.RuneCountInString(name) > 100 {
		name = string([]rune(name)[:100])
	}

	return name
}
