// Package identity resolves a stable pseudonymous agent id from the
// untrusted signals carried by a request.
package identity

import (
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/dumpkod/sdominanta/internal/crypto"
)

// Request signal names.
const (
	HeaderAgentID   = "X-Agent-Id"
	HeaderPublicKey = "X-Agent-Public-Key"
	CookieName      = "sdom_agent"
)

// CookieMaxAge is how long a service-issued identity cookie lives.
const CookieMaxAge = 365 * 24 * time.Hour

// Source tells which rule produced an id.
type Source string

const (
	SourceHeader      Source = "header"
	SourcePublicKey   Source = "public_key"
	SourceCookie      Source = "cookie"
	SourceFingerprint Source = "fingerprint"
	SourceRandom      Source = "random"
)

var (
	headerPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{6,128}$`)
	cookiePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// minPublicKeyLen is the exclusive lower bound on a usable public key.
const minPublicKeyLen = 8

// Signals are the identifying inputs of one request, all optional.
type Signals struct {
	Header     string
	PublicKey  string
	Cookie     string
	RemoteAddr string
	UserAgent  string
}

// Result is a resolved identity.
type Result struct {
	ID       string
	Nickname string
	Source   Source
	// IsNew is set when the id was derived by the resolver rather than
	// presented by the caller.
	IsNew bool
	// Cookie binds a newly derived id to the caller. Nil unless IsNew.
	Cookie *http.Cookie
}

// Resolver maps signals to agent ids. It never fails: malformed signals
// fall through to the next rule.
type Resolver struct {
	fingerprint *crypto.Fingerprinter
	secure      bool
}

// NewResolver creates a resolver. An empty secret disables fingerprinting,
// so anonymous callers get a new random id on every call. secureCookie
// marks issued cookies Secure.
func NewResolver(secret string, secureCookie bool) *Resolver {
	return &Resolver{
		fingerprint: crypto.NewFingerprinter(secret),
		secure:      secureCookie,
	}
}

// Resolve applies the rules in priority order.
func (r *Resolver) Resolve(s Signals) Result {
	switch {
	case headerPattern.MatchString(s.Header):
		return known(s.Header, SourceHeader)
	case len(s.PublicKey) > minPublicKeyLen:
		return known(crypto.HashPublicKey(s.PublicKey), SourcePublicKey)
	case cookiePattern.MatchString(s.Cookie):
		return known(truncate(s.Cookie, crypto.IDLength), SourceCookie)
	}

	res := Result{Source: SourceRandom, IsNew: true}
	if r.fingerprint != nil {
		res.ID = r.fingerprint.ID(s.RemoteAddr, s.UserAgent)
		res.Source = SourceFingerprint
	} else {
		res.ID = crypto.RandomID()
	}
	res.Nickname = Nickname(res.ID)
	res.Cookie = r.Cookie(res.ID)
	return res
}

// ResolveRequest extracts signals from r and resolves them. publicKey,
// when non-empty, takes the place of the public key header (for example
// a key sent in a registration body).
func (r *Resolver) ResolveRequest(req *http.Request, publicKey string) Result {
	return r.Resolve(SignalsFromRequest(req, publicKey))
}

// SignalsFromRequest collects identity signals from an HTTP request.
// RemoteAddr is expected to already reflect proxy headers (chi's RealIP).
func SignalsFromRequest(req *http.Request, publicKey string) Signals {
	s := Signals{
		Header:     req.Header.Get(HeaderAgentID),
		PublicKey:  publicKey,
		RemoteAddr: hostOnly(req.RemoteAddr),
		UserAgent:  req.UserAgent(),
	}
	if s.PublicKey == "" {
		s.PublicKey = req.Header.Get(HeaderPublicKey)
	}
	if c, err := req.Cookie(CookieName); err == nil {
		s.Cookie = c.Value
	}
	return s
}

// Nickname is the display name derived from an id.
func Nickname(id string) string {
	return "agent-" + truncate(id, 12)
}

// Cookie returns the service-issued cookie binding id to a caller.
func (r *Resolver) Cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		Expires:  time.Now().Add(CookieMaxAge),
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func known(id string, src Source) Result {
	return Result{ID: id, Nickname: Nickname(id), Source: src}
}

// hostOnly drops the port so a client's fingerprint survives reconnects.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
