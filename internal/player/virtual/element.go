package virtual

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sharetube/watchparty/internal/player"
)

// Element is a media element without media: position advances with the
// clock at the configured rate while playing. It implements both
// player.MediaElement and player.EmbedPlayer and reports every state
// change through the event callback, the way a browser player fires events
// for user and scripted actions alike.
type Element struct {
	mu      sync.Mutex
	clock   clock.Clock
	rate    float64
	src     string
	base    float64
	anchor  time.Time
	playing bool
	ready   bool
	onEvent func(player.Event)
}

type Option func(*Element)

// WithRate scales how fast position advances. 1.01 runs 1% fast.
func WithRate(rate float64) Option {
	return func(e *Element) {
		if rate > 0 {
			e.rate = rate
		}
	}
}

func WithOnEvent(fn func(player.Event)) Option {
	return func(e *Element) {
		e.onEvent = fn
	}
}

// WithReady sets the initial readiness. Elements start ready by default.
func WithReady(ready bool) Option {
	return func(e *Element) {
		e.ready = ready
	}
}

func New(clk clock.Clock, opts ...Option) *Element {
	e := &Element{
		clock:  clk,
		rate:   1,
		ready:  true,
		anchor: clk.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetOnEvent replaces the event callback.
func (e *Element) SetOnEvent(fn func(player.Event)) {
	e.mu.Lock()
	e.onEvent = fn
	e.mu.Unlock()
}

func (e *Element) position() float64 {
	if !e.playing {
		return e.base
	}

	elapsed := e.clock.Since(e.anchor).Seconds()
	return e.base + elapsed*e.rate
}

func (e *Element) emit(fn func(player.Event), ev player.Event) {
	if fn != nil {
		fn(ev)
	}
}

func (e *Element) SetReady(ready bool) {
	e.mu.Lock()
	was := e.ready
	e.ready = ready
	fn := e.onEvent
	pos := e.position()
	e.mu.Unlock()

	if ready && !was {
		e.emit(fn, player.Event{Kind: player.EventReady, Position: pos})
	}
}

func (e *Element) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.src
}

func (e *Element) SetSrc(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.src = url
	e.base = 0
	e.anchor = e.clock.Now()
	e.playing = false

	return nil
}

func (e *Element) Play() error {
	e.mu.Lock()
	if e.playing {
		e.mu.Unlock()
		return nil
	}
	e.base = e.position()
	e.anchor = e.clock.Now()
	e.playing = true
	fn, pos := e.onEvent, e.base
	e.mu.Unlock()

	e.emit(fn, player.Event{Kind: player.EventPlay, Position: pos})
	return nil
}

func (e *Element) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.base = e.position()
	e.anchor = e.clock.Now()
	e.playing = false
	fn, pos := e.onEvent, e.base
	e.mu.Unlock()

	e.emit(fn, player.Event{Kind: player.EventPause, Position: pos})
}

func (e *Element) SetCurrentTime(t float64) {
	if t < 0 {
		t = 0
	}

	e.mu.Lock()
	e.base = t
	e.anchor = e.clock.Now()
	fn := e.onEvent
	e.mu.Unlock()

	e.emit(fn, player.Event{Kind: player.EventSeeked, Position: t})
}

func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.position()
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return !e.playing
}

func (e *Element) ReadyState() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return player.HaveNothing
	}

	return player.HaveEnoughData
}

func (e *Element) CueVideoByID(videoID string, startSeconds float64) error {
	if err := e.SetSrc(videoID); err != nil {
		return err
	}

	e.mu.Lock()
	e.base = startSeconds
	e.mu.Unlock()

	return nil
}

func (e *Element) PlayVideo() {
	e.Play()
}

func (e *Element) PauseVideo() {
	e.Pause()
}

func (e *Element) SeekTo(seconds float64, _ bool) {
	e.SetCurrentTime(seconds)
}

func (e *Element) GetCurrentTime() float64 {
	return e.CurrentTime()
}

func (e *Element) GetPlayerState() player.EmbedState {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.src == "":
		return player.StateUnstarted
	case e.playing:
		return player.StatePlaying
	case e.base == 0:
		return player.StateCued
	default:
		return player.StatePaused
	}
}

func (e *Element) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ready
}

var (
	_ player.MediaElement = (*Element)(nil)
	_ player.EmbedPlayer  = (*Element)(nil)
)

// NewPlayer returns a Switcher whose MP4 and YouTube players both drive
// elements on clk.
func NewPlayer(clk clock.Clock, opts ...Option) (*player.Switcher, *Element, *Element) {
	mp4 := New(clk, opts...)
	yt := New(clk, opts...)

	return player.NewSwitcher(player.NewMP4(mp4), player.NewYouTube(yt)), mp4, yt
}
