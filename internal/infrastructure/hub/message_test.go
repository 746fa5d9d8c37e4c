package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateEvent_MarshalJSON(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	event := UpdateEvent{
		Resource:  "announcements",
		Action:    "deleted",
		Payload:   map[string]string{"id": "a1"},
		Timestamp: time.Date(2024, 1, 2, 4, 5, 6, 789_000_000, loc),
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"type":"update","resource":"announcements","action":"deleted","data":{"id":"a1"},"timestamp":"2024-01-02T03:05:06.789Z"}`,
		string(raw))
}

func TestUpdateEvent_MarshalNilPayload(t *testing.T) {
	raw, err := json.Marshal(UpdateEvent{Resource: "news", Action: "deleted", Timestamp: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data":null`)
}

func TestUpdateEvent_UnmarshalJSON(t *testing.T) {
	var event UpdateEvent
	err := json.Unmarshal([]byte(
		`{"type":"update","resource":"documents","action":"created","data":{"title":"Policy"},"timestamp":"2024-06-01T12:00:00.250Z"}`,
	), &event)
	require.NoError(t, err)

	assert.Equal(t, "documents", event.Resource)
	assert.Equal(t, "created", event.Action)
	assert.JSONEq(t, `{"title":"Policy"}`, string(event.Payload.(json.RawMessage)))
	assert.True(t, event.Timestamp.Equal(time.Date(2024, 6, 1, 12, 0, 0, 250_000_000, time.UTC)))
}

func TestUpdateEvent_UnmarshalRejectsOtherFrames(t *testing.T) {
	var event UpdateEvent
	assert.Error(t, json.Unmarshal([]byte(`{"type":"pong","timestamp":1}`), &event))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"update","timestamp":"yesterday"}`), &event))
}

func TestConnectionAck_JSON(t *testing.T) {
	raw, err := json.Marshal(NewConnectionAck("u-42"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection","message":"Connected to real-time updates","userId":"u-42"}`, string(raw))
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    inboundMessage
		wantErr bool
	}{
		{name: "ping", frame: `{"type":"ping"}`, want: pingMessage{}},
		{name: "ping ignores data", frame: `{"type":"ping","data":{"x":1}}`, want: pingMessage{}},
		{name: "subscribe", frame: `{"type":"subscribe","data":{"channel":"events"}}`, want: subscribeMessage{Channel: "events"}},
		{name: "subscribe empty channel", frame: `{"type":"subscribe","data":{}}`, want: subscribeMessage{}},
		{
			name:  "update",
			frame: `{"type":"update","data":{"resource":"news","action":"updated","payload":[1,2]}}`,
			want:  updateMessage{Resource: "news", Action: "updated", Payload: json.RawMessage(`[1,2]`)},
		},
		{name: "unknown", frame: `{"type":"hello"}`, want: unknownMessage{Type: "hello"}},
		{name: "subscribe missing data", frame: `{"type":"subscribe"}`, wantErr: true},
		{name: "update data wrong shape", frame: `{"type":"update","data":"oops"}`, wantErr: true},
		{name: "not an object", frame: `[1,2,3]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeInbound([]byte(tt.frame))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
