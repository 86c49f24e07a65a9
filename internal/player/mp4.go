package player

import "github.com/sharetube/watchparty/internal/protocol"

// Ready states of an HTML media element.
const (
	HaveNothing = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// MediaElement is the subset of an HTML5 media element the MP4 player
// drives.
type MediaElement interface {
	SetSrc(url string) error
	Play() error
	Pause()
	SetCurrentTime(t float64)
	CurrentTime() float64
	Paused() bool
	ReadyState() int
}

type MP4 struct {
	el     MediaElement
	loaded bool
}

func NewMP4(el MediaElement) *MP4 {
	return &MP4{el: el}
}

func (p *MP4) Load(kind protocol.MediaKind, source string) error {
	if kind != protocol.MediaKindMP4 {
		return ErrUnsupportedKind
	}

	if err := p.el.SetSrc(source); err != nil {
		return err
	}
	p.loaded = true

	return nil
}

func (p *MP4) Play() error {
	if !p.loaded {
		return ErrNotLoaded
	}

	return p.el.Play()
}

func (p *MP4) Pause() error {
	if !p.loaded {
		return ErrNotLoaded
	}

	p.el.Pause()
	return nil
}

func (p *MP4) SeekTo(t float64) error {
	if !p.loaded {
		return ErrNotLoaded
	}

	p.el.SetCurrentTime(t)
	return nil
}

func (p *MP4) Position() float64 {
	return p.el.CurrentTime()
}

func (p *MP4) IsPlaying() bool {
	return !p.el.Paused()
}

// Ready is true before anything is loaded so that the first load can go
// through.
func (p *MP4) Ready() bool {
	return !p.loaded || p.el.ReadyState() >= HaveMetadata
}
