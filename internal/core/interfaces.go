package core

import (
	"context"

	"github.com/dkeye/Chat/internal/domain"
)

// Store is the persistence collaborator consumed by the room hub.
type Store interface {
	CreateMessage(ctx context.Context, content string, sender domain.UserID, room domain.RoomID) (domain.MessageRecord, error)
	GetRoomMembers(ctx context.Context, room domain.RoomID) (domain.RoomMembers, error)
	AddMember(ctx context.Context, room domain.RoomID, user domain.UserID) error
	RemoveMember(ctx context.Context, room domain.RoomID, user domain.UserID) error
}

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (domain.Identity, error)
}

// RoomInfo is a read-only view of a loaded room.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	Connections int           `json:"connections"`
}
