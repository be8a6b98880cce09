package sdom

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpkod/sdominanta/internal/relay"
)

func startRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(relay.HubOptions{Logger: zerolog.Nop()})
	go hub.Run(ctx)

	srv := httptest.NewServer(relay.NewServer(hub, relay.ServerOptions{Logger: zerolog.Nop()}).Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialRelay(t *testing.T, url string) *RelayClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rc, err := DialRelay(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func nextFrame(t *testing.T, rc *RelayClient) *RelayFrame {
	t.Helper()
	require.NoError(t, rc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	f, err := rc.Next()
	require.NoError(t, err)
	return f
}

func TestRelayClientPublishAndAnnounce(t *testing.T) {
	url := startRelay(t)
	a, b := dialRelay(t, url), dialRelay(t, url)

	require.NoError(t, b.Subscribe("jobs"))
	require.NoError(t, b.Subscribe(AnnounceTopic))
	require.NoError(t, b.RequestPeers())
	f := nextFrame(t, b)
	require.Equal(t, "peers_list", f.Type)
	assert.Empty(t, f.Peers)

	require.NoError(t, a.Publish("jobs", map[string]int{"id": 7}))
	f = nextFrame(t, b)
	assert.Equal(t, "message", f.Type)
	assert.Equal(t, "jobs", f.Topic)
	assert.JSONEq(t, `{"id":7}`, string(f.Data))

	require.NoError(t, a.Announce("peer-a", map[string]string{"addr": "tcp://a"}))
	f = nextFrame(t, b)
	require.Equal(t, AnnounceTopic, f.Topic)
	var ann Announcement
	require.NoError(t, json.Unmarshal(f.Data, &ann))
	assert.Equal(t, "peer-a", ann.PeerID)
	assert.JSONEq(t, `{"addr":"tcp://a"}`, string(ann.Data))

	require.NoError(t, a.RequestPeers())
	f = nextFrame(t, a)
	assert.Equal(t, []string{"peer-a"}, f.Peers)
}

func TestRelayClientErrorFrame(t *testing.T) {
	url := startRelay(t)
	a := dialRelay(t, url)

	require.NoError(t, a.Subscribe(""))
	f := nextFrame(t, a)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "topic is required", f.Error)
}
