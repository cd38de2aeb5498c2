package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/manpreetbhatti/showroom/internal/coords"
)

// Name of a transport event
type Event string

const (
	// Client to server
	JoinRoom  Event = "join-room"
	LeaveRoom Event = "leave-room"
	MoveModel Event = "move-model"

	// Server to client
	Joined               Event = "joined"
	RoomFull             Event = "room-full"
	ModelPositionUpdated Event = "model-position-updated"
	ActiveUserCount      Event = "active-user-count"
)

// ErrMalformed marks a frame that cannot be decoded into a known event.
var ErrMalformed = errors.New("malformed event")

var validate = validator.New()

// Every frame on the wire is one envelope
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type RoomRequest struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

// Broadcast intent only; persistence goes through the catalog
type MoveModelRequest struct {
	RoomID   string           `json:"roomId" validate:"required,max=128"`
	ModelID  string           `json:"modelId" validate:"required,max=128"`
	Position *coords.Position `json:"position" validate:"required"`
}

type JoinedPayload struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

type RoomFullPayload struct {
	RoomID string `json:"roomId"`
}

type PositionUpdate struct {
	ModelID  string           `json:"modelId" validate:"required,max=128"`
	Position *coords.Position `json:"position" validate:"required"`
}

type ActiveUserCountPayload struct {
	Count int `json:"count" validate:"gte=0"`
}

// Encodes an event and its payload into one frame
func Encode(event Event, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads that always marshal.
func MustEncode(event Event, payload any) []byte {
	frame, err := Encode(event, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// Parses the outer envelope of a frame
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if len(frame) == 0 {
		return env, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("%w: missing event name", ErrMalformed)
	}
	return env, nil
}

// Payload unmarshals and validates the data of an envelope.
func Payload[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, fmt.Errorf("%w: %s without data", ErrMalformed, env.Event)
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return payload, nil
}
