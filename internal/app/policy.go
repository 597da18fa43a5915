package app

import (
	"errors"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop_frame"
	case KickMember:
		return "kick_member"
	default:
		return "no_action"
	}
}

// Policy decides what happens when a frame cannot be queued for a connection.
type Policy interface {
	OnBackPressure(conn *core.Connection, f core.Frame, err error) BackpressureAction
}

// SimplePolicy drops non-critical frames and kicks a consumer that cannot
// take a critical one.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ *core.Connection, _ core.Frame, err error) BackpressureAction {
	switch {
	case errors.Is(err, domain.ErrQueueFull):
		return KickMember
	case errors.Is(err, core.ErrFrameDropped):
		return DropFrame
	default:
		return NoAction
	}
}
