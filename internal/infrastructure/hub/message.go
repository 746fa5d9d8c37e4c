package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Frame type tags exchanged with clients.
const (
	TypeConnection = "connection"
	TypeSubscribe  = "subscribe"
	TypeSubscribed = "subscribed"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeUpdate     = "update"
)

const (
	connectionAckMessage = "Connected to real-time updates"

	// isoMillis renders UTC timestamps as 2006-01-02T15:04:05.000Z.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// ConnectionAck is sent exactly once, right after a connection is admitted.
type ConnectionAck struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

func NewConnectionAck(userID string) ConnectionAck {
	return ConnectionAck{Type: TypeConnection, Message: connectionAckMessage, UserID: userID}
}

type subscribedFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// UpdateEvent describes a change to a portal resource. Timestamp is the time
// the event was generated, not when it is delivered.
type UpdateEvent struct {
	Resource  string
	Action    string
	Payload   any
	Timestamp time.Time
}

func NewUpdateEvent(resource, action string, payload any) UpdateEvent {
	return UpdateEvent{
		Resource:  resource,
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

type updateFrame struct {
	Type      string `json:"type"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// MarshalJSON encodes the event as the wire update frame.
func (e UpdateEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(updateFrame{
		Type:      TypeUpdate,
		Resource:  e.Resource,
		Action:    e.Action,
		Data:      e.Payload,
		Timestamp: e.Timestamp.UTC().Format(isoMillis),
	})
}

// UnmarshalJSON decodes a wire update frame. The payload is kept as raw JSON.
func (e *UpdateEvent) UnmarshalJSON(b []byte) error {
	var f struct {
		Type      string          `json:"type"`
		Resource  string          `json:"resource"`
		Action    string          `json:"action"`
		Data      json.RawMessage `json:"data"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if f.Type != TypeUpdate {
		return fmt.Errorf("unexpected frame type %q", f.Type)
	}

	ts, err := time.Parse(time.RFC3339Nano, f.Timestamp)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}

	e.Resource = f.Resource
	e.Action = f.Action
	e.Payload = f.Data
	e.Timestamp = ts
	return nil
}

// inboundMessage is the closed set of decoded client frames.
type inboundMessage interface{ inbound() }

type subscribeMessage struct{ Channel string }

type pingMessage struct{}

type updateMessage struct {
	Resource string
	Action   string
	Payload  json.RawMessage
}

type unknownMessage struct{ Type string }

func (subscribeMessage) inbound() {}
func (pingMessage) inbound()      {}
func (updateMessage) inbound()    {}
func (unknownMessage) inbound()   {}

var errMissingData = errors.New("missing data")

func decodeInbound(frame []byte) (inboundMessage, error) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeSubscribe:
		var data struct {
			Channel string `json:"channel"`
		}
		if err := decodeData(env.Data, &data); err != nil {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		return subscribeMessage{Channel: data.Channel}, nil

	case TypePing:
		return pingMessage{}, nil

	case TypeUpdate:
		var data struct {
			Resource string          `json:"resource"`
			Action   string          `json:"action"`
			Payload  json.RawMessage `json:"payload"`
		}
		if err := decodeData(env.Data, &data); err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		return updateMessage{Resource: data.Resource, Action: data.Action, Payload: data.Payload}, nil

	default:
		return unknownMessage{Type: env.Type}, nil
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errMissingData
	}
	return json.Unmarshal(raw, v)
}
