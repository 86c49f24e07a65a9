package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeJoin          = "join"
	TypeLeave         = "leave"
	TypeSyncState     = "sync-state"
	TypeChatHistory   = "chat-history"
	TypeControl       = "control"
	TypeHeartbeatSync = "heartbeat-sync"
	TypeChat          = "chat"
	TypeMemberJoined  = "member-joined"
	TypeMemberLeft    = "member-left"
	TypeHostChanged   = "host-changed"
	TypePromote       = "promote"
	TypeSyncRequest   = "sync-request"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeError         = "error"
)

var ErrMissingPayload = errors.New("missing payload")

// Envelope is an inbound message whose payload is decoded once its type is
// known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Output is an outbound message.
type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func NewOutput(msgType string, payload any) Output {
	return Output{Type: msgType, Payload: payload}
}

func Decode[T any](env Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, fmt.Errorf("%s: %w", env.Type, ErrMissingPayload)
	}
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("%s: %w", env.Type, err)
	}

	return v, nil
}
