package room

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberAlreadyJoined = errors.New("member already joined")
	ErrConflict            = errors.New("too many concurrent room updates")
)
