package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpkod/sdominanta/internal/crypto"
)

func TestResolvePriorityOrder(t *testing.T) {
	r := NewResolver("salt", false)
	all := Signals{
		Header:     "agent_alpha",
		PublicKey:  "ed25519:AAAAC3NzaC1lZDI1NTE5",
		Cookie:     "0123456789abcdef",
		RemoteAddr: "203.0.113.1",
		UserAgent:  "curl/8",
	}

	res := r.Resolve(all)
	assert.Equal(t, "agent_alpha", res.ID)
	assert.Equal(t, SourceHeader, res.Source)

	all.Header = ""
	res = r.Resolve(all)
	assert.Equal(t, crypto.HashPublicKey(all.PublicKey), res.ID)
	assert.Equal(t, SourcePublicKey, res.Source)

	all.PublicKey = ""
	res = r.Resolve(all)
	assert.Equal(t, "0123456789abcdef", res.ID)
	assert.Equal(t, SourceCookie, res.Source)

	all.Cookie = ""
	res = r.Resolve(all)
	assert.Equal(t, SourceFingerprint, res.Source)
}

func TestResolveKnownSourcesAreNotNew(t *testing.T) {
	r := NewResolver("salt", false)

	for _, s := range []Signals{
		{Header: "agent_alpha"},
		{PublicKey: "a-long-public-key"},
		{Cookie: "abc"},
	} {
		res := r.Resolve(s)
		assert.False(t, res.IsNew, "source %s", res.Source)
		assert.Nil(t, res.Cookie, "source %s", res.Source)
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := NewResolver("salt", false)
	signals := []Signals{
		{Header: "agent_alpha"},
		{PublicKey: "a-long-public-key"},
		{Cookie: "cookie-value-longer-than-sixteen"},
		{RemoteAddr: "198.51.100.4", UserAgent: "bot/2"},
	}
	for _, s := range signals {
		first := r.Resolve(s)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first.ID, r.Resolve(s).ID)
		}
	}
}

func TestResolveMalformedHeaderFallsThrough(t *testing.T) {
	r := NewResolver("", false)

	for _, h := range []string{"short", "has space!", strings.Repeat("x", 129), "semi;colon"} {
		res := r.Resolve(Signals{Header: h, PublicKey: "a-long-public-key"})
		assert.Equal(t, SourcePublicKey, res.Source, "header %q", h)
	}
}

func TestResolveShortPublicKeyIgnored(t *testing.T) {
	r := NewResolver("", false)

	res := r.Resolve(Signals{PublicKey: "12345678", Cookie: "fromcookie"})
	assert.Equal(t, SourceCookie, res.Source)
	assert.Equal(t, "fromcookie", res.ID)
}

func TestResolveCookieTruncatedAndValidated(t *testing.T) {
	r := NewResolver("salt", false)

	res := r.Resolve(Signals{Cookie: "0123456789abcdef-and-more"})
	assert.Equal(t, "0123456789abcdef", res.ID)

	res = r.Resolve(Signals{Cookie: "bad cookie", RemoteAddr: "198.51.100.4"})
	assert.Equal(t, SourceFingerprint, res.Source)
}

func TestResolveFingerprintStablePerPair(t *testing.T) {
	r := NewResolver("salt", false)

	a := r.Resolve(Signals{RemoteAddr: "198.51.100.4", UserAgent: "bot/2"})
	b := r.Resolve(Signals{RemoteAddr: "198.51.100.4", UserAgent: "bot/2"})
	c := r.Resolve(Signals{RemoteAddr: "198.51.100.5", UserAgent: "bot/2"})
	d := r.Resolve(Signals{RemoteAddr: "198.51.100.4", UserAgent: "bot/3"})

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.NotEqual(t, a.ID, d.ID)
	assert.Len(t, a.ID, crypto.IDLength)
}

func TestResolveWithoutSecretIsRandom(t *testing.T) {
	r := NewResolver("", false)
	s := Signals{RemoteAddr: "198.51.100.4", UserAgent: "bot/2"}

	a, b := r.Resolve(s), r.Resolve(s)
	assert.Equal(t, SourceRandom, a.Source)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestResolveDerivedIssuesCookie(t *testing.T) {
	r := NewResolver("salt", true)

	res := r.Resolve(Signals{RemoteAddr: "198.51.100.4", UserAgent: "bot/2"})
	require.True(t, res.IsNew)
	require.NotNil(t, res.Cookie)
	assert.Equal(t, CookieName, res.Cookie.Name)
	assert.Equal(t, res.ID, res.Cookie.Value)
	assert.Equal(t, 365*24*60*60, res.Cookie.MaxAge)
	assert.True(t, res.Cookie.Secure)
	assert.True(t, res.Cookie.HttpOnly)

	// Presenting the issued cookie moves the caller onto the cookie rule.
	again := r.Resolve(Signals{Cookie: res.Cookie.Value, RemoteAddr: "10.9.9.9"})
	assert.Equal(t, SourceCookie, again.Source)
	assert.Equal(t, res.ID, again.ID)
	assert.False(t, again.IsNew)
}

func TestNickname(t *testing.T) {
	assert.Equal(t, "agent-0123456789ab", Nickname("0123456789abcdef"))
	assert.Equal(t, "agent-short", Nickname("short"))
}

func TestSignalsFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	req.RemoteAddr = "192.0.2.10:53211"
	req.Header.Set("User-Agent", "sdom-agent/1")
	req.Header.Set(HeaderAgentID, "agent_alpha")
	req.Header.Set(HeaderPublicKey, "header-public-key")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "cookieid"})

	s := SignalsFromRequest(req, "")
	assert.Equal(t, Signals{
		Header:     "agent_alpha",
		PublicKey:  "header-public-key",
		Cookie:     "cookieid",
		RemoteAddr: "192.0.2.10",
		UserAgent:  "sdom-agent/1",
	}, s)

	s = SignalsFromRequest(req, "body-public-key")
	assert.Equal(t, "body-public-key", s.PublicKey)
}

func TestResolveRequestIgnoresSourcePort(t *testing.T) {
	r := NewResolver("salt", false)

	req1 := httptest.NewRequest(http.MethodPost, "/send", nil)
	req1.RemoteAddr = "192.0.2.10:1111"
	req2 := httptest.NewRequest(http.MethodPost, "/send", nil)
	req2.RemoteAddr = "192.0.2.10:2222"

	assert.Equal(t, r.ResolveRequest(req1, "").ID, r.ResolveRequest(req2, "").ID)
}
