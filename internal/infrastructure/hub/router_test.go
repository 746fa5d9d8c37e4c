package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-portal-realtime/internal/infrastructure/metrics"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func newTestRouter(b Broadcaster, m *metrics.Realtime) *Router {
	r := NewRouter(b, &mockLogger{}, m)
	r.now = func() time.Time { return fixedNow }
	return r
}

func decodeFrame(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestRouter_PingRepliesPongToSenderOnly(t *testing.T) {
	broadcaster := &stubBroadcaster{}
	router := newTestRouter(broadcaster, nil)
	sender := newMockConnection("sender")

	router.HandleInbound(context.Background(), sender, []byte(`{"type":"ping"}`))

	require.Len(t, sender.Frames(), 1)
	frame := decodeFrame(t, sender.Frames()[0])
	assert.Equal(t, "pong", frame["type"])
	assert.Equal(t, float64(fixedNow.UnixMilli()), frame["timestamp"])
	assert.Empty(t, broadcaster.Events())
}

func TestRouter_SubscribeRepliesWithChannel(t *testing.T) {
	broadcaster := &stubBroadcaster{}
	router := newTestRouter(broadcaster, nil)
	sender := newMockConnection("sender")

	router.HandleInbound(context.Background(), sender, []byte(`{"type":"subscribe","data":{"channel":"news"}}`))

	require.Len(t, sender.Frames(), 1)
	assert.JSONEq(t, `{"type":"subscribed","channel":"news"}`, string(sender.Frames()[0]))
	assert.Empty(t, broadcaster.Events())
}

func TestRouter_UpdateIsBroadcast(t *testing.T) {
	broadcaster := &stubBroadcaster{}
	router := newTestRouter(broadcaster, nil)
	sender := newMockConnection("sender")

	router.HandleInbound(context.Background(), sender,
		[]byte(`{"type":"update","data":{"resource":"events","action":"updated","payload":{"id":"e1"}}}`))

	assert.Empty(t, sender.Frames(), "update gets no direct reply")
	events := broadcaster.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "events", events[0].Resource)
	assert.Equal(t, "updated", events[0].Action)
	assert.Equal(t, fixedNow, events[0].Timestamp)
	assert.JSONEq(t, `{"id":"e1"}`, string(events[0].Payload.(json.RawMessage)))
}

func TestRouter_UpdateWithoutPayload(t *testing.T) {
	broadcaster := &stubBroadcaster{}
	router := newTestRouter(broadcaster, nil)

	router.HandleInbound(context.Background(), newMockConnection("c"),
		[]byte(`{"type":"update","data":{"resource":"news","action":"deleted"}}`))

	events := broadcaster.Events()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Payload)
}

func TestRouter_UpdateReachesEveryConnectionIncludingSender(t *testing.T) {
	hub := startHub(t)
	conns := []*mockConnection{newMockConnection("a"), newMockConnection("b"), newMockConnection("c")}
	registerAll(t, hub, conns...)
	router := newTestRouter(hub, nil)

	router.HandleInbound(context.Background(), conns[0],
		[]byte(`{"type":"update","data":{"resource":"news","action":"created","payload":{"title":"Hello"}}}`))

	for _, c := range conns {
		require.Eventually(t, func() bool { return len(c.Frames()) == 1 }, time.Second, 5*time.Millisecond)
		assert.JSONEq(t,
			`{"type":"update","resource":"news","action":"created","data":{"title":"Hello"},"timestamp":"2024-03-15T09:30:00.000Z"}`,
			string(c.Frames()[0]))
	}
}

func TestRouter_IgnoresBadFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		label string
	}{
		{name: "not json", frame: `not-json`, label: "malformed"},
		{name: "truncated", frame: `{"type":"ping"`, label: "malformed"},
		{name: "subscribe without data", frame: `{"type":"subscribe"}`, label: "malformed"},
		{name: "update with null data", frame: `{"type":"update","data":null}`, label: "malformed"},
		{name: "unknown type", frame: `{"type":"teleport","data":{}}`, label: "unknown"},
		{name: "missing type", frame: `{"data":{}}`, label: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewRealtime(prometheus.NewRegistry())
			broadcaster := &stubBroadcaster{}
			router := newTestRouter(broadcaster, m)
			conn := newMockConnection("c")

			router.HandleInbound(context.Background(), conn, []byte(tt.frame))

			assert.Empty(t, conn.Frames())
			assert.Empty(t, broadcaster.Events())
			assert.False(t, conn.IsClosed(), "connection stays open")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundMessages.WithLabelValues(tt.label)))
		})
	}
}

func TestRouter_DropsRateLimitedUpdates(t *testing.T) {
	broadcaster := &stubBroadcaster{}
	router := newTestRouter(broadcaster, nil)
	conn := &limitedConnection{mockConnection: newMockConnection("c"), allow: false}

	router.HandleInbound(context.Background(), conn,
		[]byte(`{"type":"update","data":{"resource":"news","action":"created"}}`))
	assert.Empty(t, broadcaster.Events())

	conn.allow = true
	router.HandleInbound(context.Background(), conn,
		[]byte(`{"type":"update","data":{"resource":"news","action":"created"}}`))
	assert.Len(t, broadcaster.Events(), 1)
}

func TestRouter_SurvivesBroadcastFailure(t *testing.T) {
	broadcaster := &stubBroadcaster{err: errors.New("queue full")}
	router := newTestRouter(broadcaster, nil)
	conn := newMockConnection("c")

	router.HandleInbound(context.Background(), conn,
		[]byte(`{"type":"update","data":{"resource":"news","action":"created"}}`))
	router.HandleInbound(context.Background(), conn, []byte(`{"type":"ping"}`))

	assert.False(t, conn.IsClosed())
	assert.Len(t, conn.Frames(), 1, "later frames are still answered")
}
