package faultfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faultgate/internal/dispatch"
	"faultgate/internal/shared/testutil"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	hub := NewHub(logger)
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

func newRegisteredClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	client := NewClientWithConnection(hub, NewMockConnection(), logger)
	hub.Register(client)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)
	return client
}

func receive(t *testing.T, client *Client) map[string]any {
	t.Helper()
	select {
	case data := <-client.send:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for feed message")
		return nil
	}
}

func TestHub_RegisterSendsGreeting(t *testing.T) {
	hub := newTestHub(t)
	client := newRegisteredClient(t, hub)

	msg := receive(t, client)
	assert.Equal(t, TypeConnection, msg["type"])

	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "connected", data["status"])
	assert.Equal(t, client.id, data["client_id"])
}

func TestHub_ObserverBroadcastsFaultEvents(t *testing.T) {
	hub := newTestHub(t)
	client := newRegisteredClient(t, hub)
	receive(t, client) // drain greeting

	observer := hub.Observer()
	observer(dispatch.Event{
		Kind:    "not_found",
		Status:  http.StatusNotFound,
		Scope:   "/api/items/{id}",
		URL:     "/api/items/9",
		Handler: "renderProblem",
		Time:    time.Now(),
	})

	msg := receive(t, client)
	assert.Equal(t, TypeFault, msg["type"])

	event, ok := msg["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "not_found", event["kind"])
	assert.Equal(t, float64(http.StatusNotFound), event["status"])
	assert.Equal(t, "/api/items/{id}", event["scope"])
	assert.Equal(t, "renderProblem", event["handler"])
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := newTestHub(t)
	logger, _ := testutil.NewTestLogger(t)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = NewClientWithConnection(hub, NewMockConnection(), logger)
		hub.Register(clients[i])
	}
	require.Eventually(t, func() bool {
		return hub.ClientCount() == len(clients)
	}, time.Second, 5*time.Millisecond)

	for _, c := range clients {
		receive(t, c) // drain greeting
	}

	hub.Observer()(dispatch.Event{Kind: "server_error", Status: 500, Time: time.Now()})

	for _, c := range clients {
		msg := receive(t, c)
		assert.Equal(t, TypeFault, msg["type"])
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	hub := newTestHub(t)
	client := newRegisteredClient(t, hub)

	hub.unregister <- client

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)

	// Drain until the channel reports closed.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-client.send:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := newTestHub(t)
	client := newRegisteredClient(t, hub)

	// Fill the client's send buffer without draining it. Feeding the
	// broadcast channel directly guarantees every delivery is attempted.
	for i := 0; i < cap(client.send)+2; i++ {
		hub.broadcast <- []byte(`{"type":"fault"}`)
	}

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hub := NewHub(logger)
	hub.Start()

	client := NewClientWithConnection(hub, NewMockConnection(), logger)
	hub.Register(client)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	hub.Stop()

	// Stop returns only after the run loop has closed every send
	// channel, so the closed state is observable without waiting.
	closed := false
	for !closed {
		select {
		case _, open := <-client.send:
			closed = !open
		default:
			t.Fatal("send channel not closed after Stop")
		}
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_StartIsIdempotent(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hub := NewHub(logger)
	hub.Start()
	hub.Start()
	hub.Stop()
	hub.Stop()
}

func TestHub_Stats(t *testing.T) {
	hub := newTestHub(t)
	client := newRegisteredClient(t, hub)
	receive(t, client)

	stats := hub.Stats(context.Background())
	assert.Equal(t, 1, stats["active_clients"])
	assert.Equal(t, int64(1), stats["total_connections"])
}

func TestClient_WritePumpDeliversFrames(t *testing.T) {
	hub := newTestHub(t)
	logger, _ := testutil.NewTestLogger(t)
	conn := NewMockConnection()
	client := NewClientWithConnection(hub, conn, logger)

	go client.WritePump()
	client.send <- []byte(`{"type":"fault"}`)

	require.Eventually(t, func() bool {
		return len(conn.GetWrittenMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	written := conn.GetWrittenMessages()[0]
	assert.JSONEq(t, `{"type":"fault"}`, string(written.Data))

	close(client.send)
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.Closed
	}, time.Second, 5*time.Millisecond)
}
