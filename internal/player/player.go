package player

import (
	"errors"

	"github.com/sharetube/watchparty/internal/protocol"
)

var (
	ErrUnsupportedKind = errors.New("unsupported media kind")
	ErrNotLoaded       = errors.New("no media loaded")
)

// Player is the playback capability the client reconciles. Reads may be
// called from any goroutine; mutations come from one.
type Player interface {
	Load(kind protocol.MediaKind, source string) error
	Play() error
	Pause() error
	SeekTo(t float64) error
	Position() float64
	IsPlaying() bool
	// Ready reports whether the underlying player can accept commands.
	Ready() bool
}

type EventKind string

const (
	EventPlay   EventKind = "play"
	EventPause  EventKind = "pause"
	EventSeeked EventKind = "seeked"
	EventReady  EventKind = "ready"
)

// Event is a playback event raised by the player, whether a user or the
// client caused it.
type Event struct {
	Kind     EventKind
	Position float64
}
