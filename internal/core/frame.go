package core

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

// Outbound event kinds.
const (
	KindReady             = "ready"
	KindUserJoined        = "userJoined"
	KindUserLeft          = "userLeft"
	KindUpdateUsers       = "updateUsers"
	KindUserTyping        = "userTyping"
	KindUserStoppedTyping = "userStoppedTyping"
	KindMessage           = "message"
	KindError             = "error"
	KindJoined            = "joined"
	KindLeft              = "left"
	KindPong              = "pong"
)

// Frame is one serialized outbound event. Critical frames are never
// silently dropped by an OutboundQueue.
type Frame struct {
	Kind     string
	Data     []byte
	Critical bool
}

// Envelope is the JSON shape of every frame on the wire, both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IsCritical reports whether frames of kind must reach the client or
// cost it the connection.
func IsCritical(kind string) bool {
	switch kind {
	case KindUserTyping, KindUserStoppedTyping, KindPong:
		return false
	default:
		return true
	}
}

func EncodeFrame(kind string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	b, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: kind, Data: b, Critical: IsCritical(kind)}, nil
}

type ReadyPayload struct {
	Identity     domain.Identity `json:"identity"`
	ConnectionID ConnectionID    `json:"connectionId"`
}

type UserJoinedPayload struct {
	RoomID   domain.RoomID   `json:"roomId"`
	Identity domain.Identity `json:"identity"`
}

type UserLeftPayload struct {
	RoomID     domain.RoomID `json:"roomId"`
	IdentityID domain.UserID `json:"identityId"`
}

type UpdateUsersPayload struct {
	RoomID domain.RoomID           `json:"roomId"`
	Users  domain.PresenceSnapshot `json:"users"`
}

type TypingPayload struct {
	RoomID   domain.RoomID `json:"roomId"`
	Username string        `json:"username"`
}

type MessagePayload struct {
	ID            domain.MessageID   `json:"id"`
	RoomID        domain.RoomID      `json:"roomId"`
	Content       string             `json:"content"`
	Username      string             `json:"username"`
	Timestamp     time.Time          `json:"timestamp"`
	IsCurrentUser bool               `json:"isCurrentUser"`
	Type          domain.MessageType `json:"type"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type JoinedPayload struct {
	RoomID domain.RoomID           `json:"roomId"`
	Users  domain.PresenceSnapshot `json:"users"`
}

type LeftPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

// ErrorFrame builds the error event reported back to the originating client.
func ErrorFrame(err error) Frame {
	code := domain.KindOf(err).String()
	if errors.Is(err, domain.ErrRateLimited) {
		code = "rate_limited"
	}
	f, encErr := EncodeFrame(KindError, ErrorPayload{Message: err.Error(), Code: code})
	if encErr != nil {
		return Frame{Kind: KindError, Data: []byte(`{"type":"error","data":{"message":"internal error","code":"internal"}}`), Critical: true}
	}
	return f
}
