package world

import (
	"errors"
	"fmt"

	"github.com/entropy-world/entropy/pkg/grid"
)

// ErrAlreadyHasGuest rejects a free spawn for a player who already owns
// a guest.
var ErrAlreadyHasGuest = errors.New("player already has guest <- only player with no guest can spawn free guest")

// ErrAuthHeader reports a missing or malformed credential header.
var ErrAuthHeader = errors.New("authorization header error")

// AuthError reports failed credentials for a player id. It deliberately
// does not distinguish an unknown id from a wrong password.
type AuthError struct {
	PlayerID int32
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization error <- uid::%d or password", e.PlayerID)
}

// PlayerNotExistError reports a lookup of an unknown player id.
type PlayerNotExistError struct {
	ID int32
}

func (e *PlayerNotExistError) Error() string {
	return fmt.Sprintf("player not exist <- request player id:%d", e.ID)
}

// GuestNotExistError reports a guest that is absent or not owned by the
// requesting player. Ownership failures use the same error so guest ids
// leak nothing.
type GuestNotExistError struct {
	GID int32
}

func (e *GuestNotExistError) Error() string {
	return fmt.Sprintf("guest not exist <- request guest id:%d", e.GID)
}

// DirectionNotAllowedError reports a walk vector outside the
// 9-neighborhood.
type DirectionNotAllowedError struct {
	Direction grid.Direction
}

func (e *DirectionNotAllowedError) Error() string {
	return fmt.Sprintf("navi direction not allowed <- request direction:(%d, %d)", e.Direction[0], e.Direction[1])
}
