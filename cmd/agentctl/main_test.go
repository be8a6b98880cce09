package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpkod/sdominanta/internal/api"
	"github.com/dumpkod/sdominanta/internal/handlers"
	"github.com/dumpkod/sdominanta/internal/identity"
	"github.com/dumpkod/sdominanta/internal/store"
)

func startGateway(t *testing.T) string {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	srv := httptest.NewServer(api.NewRouter(api.Options{
		Logger: zerolog.Nop(),
		Handler: handlers.NewHandler(handlers.Options{
			Mailbox:  store.NewRedisStoreFromClient(client),
			Resolver: identity.NewResolver("secret", false),
			Logger:   zerolog.Nop(),
		}),
		Redis: client,
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSendHasTake(t *testing.T) {
	t.Setenv("SDOM_CONFIG", t.TempDir())
	url := startGateway(t)

	out, err := run(t, "--url", url, "send", "inbox-1", "hello", "--ttl", "120")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Sent: mbox:inbox-1:"), out)

	out, err = run(t, "--url", url, "send", "inbox-1", "hello", "--idempotency-key", "k1")
	require.NoError(t, err)
	out, err = run(t, "--url", url, "send", "inbox-1", "hello", "--idempotency-key", "k1")
	require.NoError(t, err)
	assert.Contains(t, out, "Duplicate")

	out, err = run(t, "--url", url, "has", "inbox-1")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = run(t, "--url", url, "take", "inbox-1")
	require.NoError(t, err)
	assert.Contains(t, out, ": hello")

	out, err = run(t, "--url", url, "read", "inbox-1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))

	out, err = run(t, "--url", url, "take", "inbox-1")
	require.NoError(t, err)
	assert.Equal(t, "Mailbox empty\n", out)
}

func TestRegisterThenReadSealed(t *testing.T) {
	t.Setenv("SDOM_CONFIG", t.TempDir())
	url := startGateway(t)

	out, err := run(t, "--url", url, "register", "bob")
	require.NoError(t, err)
	require.Contains(t, out, "Registered as: ")

	var id, key string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if rest, ok := strings.CutPrefix(line, "Registered as: "); ok {
			id = strings.Fields(rest)[0]
		}
		if rest, ok := strings.CutPrefix(line, "Public key: "); ok {
			key = rest
		}
	}
	require.NotEmpty(t, id)
	require.NotEmpty(t, key)

	_, err = run(t, "--url", url, "send", id, "for your eyes", "--seal-to", key)
	require.NoError(t, err)

	out, err = run(t, "--url", url, "read")
	require.NoError(t, err)
	assert.Contains(t, out, ": for your eyes")
}

func TestArgsValidation(t *testing.T) {
	_, err := run(t, "send", "only-recipient")
	assert.Error(t, err)
}
