package player

import "github.com/sharetube/watchparty/internal/protocol"

// EmbedState mirrors YT.PlayerState.
type EmbedState int

const (
	StateUnstarted EmbedState = -1
	StateEnded     EmbedState = 0
	StatePlaying   EmbedState = 1
	StatePaused    EmbedState = 2
	StateBuffering EmbedState = 3
	StateCued      EmbedState = 5
)

// EmbedPlayer is the subset of the YouTube IFrame player API the YouTube
// player drives.
type EmbedPlayer interface {
	CueVideoByID(videoID string, startSeconds float64) error
	PlayVideo()
	PauseVideo()
	SeekTo(seconds float64, allowSeekAhead bool)
	GetCurrentTime() float64
	GetPlayerState() EmbedState
	// IsReady reports whether onReady has fired.
	IsReady() bool
}

type YouTube struct {
	p      EmbedPlayer
	loaded bool
}

func NewYouTube(p EmbedPlayer) *YouTube {
	return &YouTube{p: p}
}

// Load cues the video without starting it.
func (y *YouTube) Load(kind protocol.MediaKind, source string) error {
	if kind != protocol.MediaKindYouTube {
		return ErrUnsupportedKind
	}

	if err := y.p.CueVideoByID(source, 0); err != nil {
		return err
	}
	y.loaded = true

	return nil
}

func (y *YouTube) Play() error {
	if !y.loaded {
		return ErrNotLoaded
	}

	y.p.PlayVideo()
	return nil
}

func (y *YouTube) Pause() error {
	if !y.loaded {
		return ErrNotLoaded
	}

	y.p.PauseVideo()
	return nil
}

func (y *YouTube) SeekTo(t float64) error {
	if !y.loaded {
		return ErrNotLoaded
	}

	y.p.SeekTo(t, true)
	return nil
}

func (y *YouTube) Position() float64 {
	return y.p.GetCurrentTime()
}

func (y *YouTube) IsPlaying() bool {
	state := y.p.GetPlayerState()
	return state == StatePlaying || state == StateBuffering
}

func (y *YouTube) Ready() bool {
	return y.p.IsReady()
}
