package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbingo/backend/internal/config"
	"github.com/playbingo/backend/internal/game"
	"github.com/playbingo/backend/internal/store"
)

func newTestGateway() *Gateway {
	return NewGateway(store.NewMemoryStore(), &config.Config{AppID: "test"})
}

// newTestClient builds a client the way HandleGameWebSocket does, minus the
// upgraded socket; close tolerates the nil conn.
func newTestClient(g *Gateway, id string) *Client {
	client := &Client{
		participantID: id,
		send:          make(chan []byte, 4),
		done:          make(chan struct{}),
		cancel:        func() {},
	}
	client.ctrl = game.NewController(g.st, game.Options{
		AppID:         g.cfg.AppID,
		ParticipantID: id,
		OnUpdate:      client.sendSnapshot,
	})
	return client
}

func closed(c *Client) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func TestRegisterReplacesExistingConnection(t *testing.T) {
	g := newTestGateway()
	old := newTestClient(g, "p1")
	g.register(old)
	require.Equal(t, 1, g.ConnectionCount())

	// Same participant reconnects (e.g. a second tab): one slot, the old
	// client is shut down, the replacement stays live.
	replacement := newTestClient(g, "p1")
	g.register(replacement)
	assert.Equal(t, 1, g.ConnectionCount())
	assert.True(t, closed(old), "replaced client was not shut down")
	assert.False(t, closed(replacement))
}

func TestReplacedConnectionDropCleanup(t *testing.T) {
	g := newTestGateway()
	old := newTestClient(g, "p1")
	g.register(old)
	replacement := newTestClient(g, "p1")
	g.register(replacement)

	// The old socket drops some time after the replacement took over its
	// map slot, and its read loop's deferred cleanup runs. That must
	// neither panic nor evict the replacement.
	require.NotPanics(t, func() { g.unregister(old) })
	assert.Equal(t, 1, g.ConnectionCount())

	// Cleanup is idempotent.
	require.NotPanics(t, func() { g.unregister(old) })
	assert.Equal(t, 1, g.ConnectionCount())

	g.unregister(replacement)
	assert.Equal(t, 0, g.ConnectionCount())
}

func TestSendAfterShutdownIsHarmless(t *testing.T) {
	g := newTestGateway()
	client := newTestClient(g, "p1")
	g.register(client)
	g.unregister(client)

	assert.NotPanics(t, func() {
		client.sendSnapshot(game.Snapshot{ParticipantID: "p1"})
		client.sendError("too late")
	})
}
