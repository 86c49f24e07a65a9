package player

import (
	"sync"

	"github.com/sharetube/watchparty/internal/protocol"
)

// Switcher routes every call to the player of the currently loaded media
// kind. Loading another kind pauses the previous player.
type Switcher struct {
	mu      sync.RWMutex
	players map[protocol.MediaKind]Player
	current protocol.MediaKind
}

func NewSwitcher(mp4, youtube Player) *Switcher {
	return &Switcher{
		players: map[protocol.MediaKind]Player{
			protocol.MediaKindMP4:     mp4,
			protocol.MediaKindYouTube: youtube,
		},
		current: protocol.MediaKindMP4,
	}
}

func (s *Switcher) active() Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.players[s.current]
}

func (s *Switcher) Kind() protocol.MediaKind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

func (s *Switcher) Load(kind protocol.MediaKind, source string) error {
	next, ok := s.players[kind]
	if !ok || next == nil {
		return ErrUnsupportedKind
	}

	prev := s.active()
	if prev != next && prev.IsPlaying() {
		if err := prev.Pause(); err != nil {
			return err
		}
	}

	if err := next.Load(kind, source); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = kind
	s.mu.Unlock()

	return nil
}

func (s *Switcher) Play() error {
	return s.active().Play()
}

func (s *Switcher) Pause() error {
	return s.active().Pause()
}

func (s *Switcher) SeekTo(t float64) error {
	return s.active().SeekTo(t)
}

func (s *Switcher) Position() float64 {
	return s.active().Position()
}

func (s *Switcher) IsPlaying() bool {
	return s.active().IsPlaying()
}

func (s *Switcher) Ready() bool {
	return s.active().Ready()
}
