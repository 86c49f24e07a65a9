package reconciler

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sharetube/watchparty/internal/player"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

const (
	DefaultDriftThreshold = 0.5
	DefaultGuardWindow    = 300 * time.Millisecond
)

var (
	ErrInvalidPolicy = errors.New("invalid policy")
	ErrInvalidSource = errors.New("invalid source")
)

type State int

const (
	Idle State = iota
	// ApplyingRemote lasts for the guard window after the last remote
	// mutation of the player. Local events seen in it are echoes.
	ApplyingRemote
)

func (s State) String() string {
	if s == ApplyingRemote {
		return "applying-remote"
	}

	return "idle"
}

// Result tells the caller what became of an inbound event.
type Result int

const (
	Applied Result = iota
	// Ignored events were stale or needed no player change.
	Ignored
	// Queued events wait for the player to become ready.
	Queued
	// NeedResync means the event proves a control was missed and the caller
	// should request a fresh snapshot.
	NeedResync
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	case Queued:
		return "queued"
	default:
		return "need-resync"
	}
}

// Policy decides which members turn local player events into controls.
type Policy string

const (
	PolicyAnyMember Policy = "any"
	PolicyHostOnly  Policy = "host"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyAnyMember, PolicyHostOnly:
		return p, nil
	case "":
		return PolicyAnyMember, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

type Config struct {
	DriftThreshold float64
	GuardWindow    time.Duration
	Policy         Policy
	Clock          clock.Clock
}

// Reconciler keeps a local player in step with the room. It is not safe for
// concurrent use: the client event loop owns it.
type Reconciler struct {
	player player.Player
	cfg    Config
	logger *slog.Logger

	roomID     string
	selfID     string
	hostID     string
	applied    int64
	kind       protocol.MediaKind
	source     string
	guardUntil time.Time
	pending    []func() error
}

func New(p player.Player, cfg Config, logger *slog.Logger) *Reconciler {
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = DefaultDriftThreshold
	}
	if cfg.GuardWindow <= 0 {
		cfg.GuardWindow = DefaultGuardWindow
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAnyMember
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		player: p,
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Reconciler) State() State {
	if r.cfg.Clock.Now().Before(r.guardUntil) {
		return ApplyingRemote
	}

	return Idle
}

func (r *Reconciler) Applied() int64 {
	return r.applied
}

func (r *Reconciler) RoomID() string {
	return r.roomID
}

func (r *Reconciler) SelfID() string {
	return r.selfID
}

func (r *Reconciler) HostID() string {
	return r.hostID
}

func (r *Reconciler) IsHost() bool {
	return r.selfID != "" && r.selfID == r.hostID
}

func (r *Reconciler) SetHost(hostID string) {
	r.hostID = hostID
}

// Pending returns the number of queued inbound events.
func (r *Reconciler) Pending() int {
	return len(r.pending)
}

// Reset forgets the room. Queued events are dropped.
func (r *Reconciler) Reset() {
	r.roomID = ""
	r.selfID = ""
	r.hostID = ""
	r.applied = 0
	r.kind = ""
	r.source = ""
	r.guardUntil = time.Time{}
	r.pending = nil
}

func (r *Reconciler) guard() {
	r.guardUntil = r.cfg.Clock.Now().Add(r.cfg.GuardWindow)
}

// deferUntilReady runs fn now if the player is ready, otherwise queues it.
func (r *Reconciler) deferUntilReady(fn func() error) (Result, error) {
	if len(r.pending) > 0 || !r.player.Ready() {
		r.pending = append(r.pending, fn)
		return Queued, nil
	}

	if err := fn(); err != nil {
		return Applied, err
	}

	return Applied, nil
}

// PlayerReady replays queued events in arrival order. It stops early if the
// player becomes unavailable again, leaving the rest queued.
func (r *Reconciler) PlayerReady() error {
	for len(r.pending) > 0 && r.player.Ready() {
		fn := r.pending[0]
		r.pending = r.pending[1:]
		if err := fn(); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reconciler) load(kind protocol.MediaKind, source string) error {
	r.guard()
	if err := r.player.Load(kind, source); err != nil {
		return fmt.Errorf("failed to load %s %q: %w", kind, source, err)
	}

	return nil
}

// settle moves the player to position and play state. Seeks smaller than
// threshold are skipped.
func (r *Reconciler) settle(position float64, playing bool, threshold float64) error {
	if math.Abs(r.player.Position()-position) > threshold {
		r.guard()
		if err := r.player.SeekTo(position); err != nil {
			return err
		}
	}

	if playing != r.player.IsPlaying() {
		r.guard()
		if playing {
			return r.player.Play()
		}
		return r.player.Pause()
	}

	return nil
}

// loadAndSettle loads source when it differs from the current one and then
// settles, waiting for readiness between the two if the load needs it.
func (r *Reconciler) loadAndSettle(kind protocol.MediaKind, source string, position float64, playing bool, threshold float64) (Result, error) {
	if source != "" && (source != r.source || kind != r.kind) {
		if err := r.load(kind, source); err != nil {
			return Applied, err
		}
		r.kind, r.source = kind, source
	}

	return r.deferUntilReady(func() error {
		return r.settle(position, playing, threshold)
	})
}

// HandleSnapshot applies a full room state. Snapshots are authoritative and
// replace any optimistic local revision.
func (r *Reconciler) HandleSnapshot(state protocol.SyncState) (Result, error) {
	r.roomID = state.RoomID
	r.selfID = state.SelfID
	r.hostID = state.HostID
	r.applied = state.Revision
	r.pending = nil

	if state.Source == nil {
		return Ignored, nil
	}

	return r.loadAndSettle(state.MediaKind, *state.Source, state.Position, state.Playing, r.cfg.DriftThreshold)
}

// HandleControl applies a control broadcast. Events at or below the applied
// revision were already reflected and are dropped.
func (r *Reconciler) HandleControl(ev protocol.ControlEvent) (Result, error) {
	if ev.Revision <= r.applied {
		r.logger.Debug("stale control ignored", "revision", ev.Revision, "applied", r.applied)
		return Ignored, nil
	}
	r.applied = ev.Revision

	threshold := r.cfg.DriftThreshold
	if ev.Action == protocol.ActionSeek || ev.Action == protocol.ActionLoad {
		threshold = 0
	}

	return r.loadAndSettle(ev.MediaKind, ev.Source, ev.Position, ev.Playing, threshold)
}

// HandleHeartbeat nudges a viewer toward the host. Positions within the
// drift threshold are left alone.
func (r *Reconciler) HandleHeartbeat(ev protocol.HeartbeatEvent) (Result, error) {
	if ev.HostID != "" {
		r.hostID = ev.HostID
	}
	if r.IsHost() {
		return Ignored, nil
	}

	switch {
	case ev.Revision < r.applied:
		return Ignored, nil
	case ev.Revision > r.applied:
		r.logger.Debug("heartbeat ahead of applied revision", "revision", ev.Revision, "applied", r.applied)
		return NeedResync, nil
	}

	if r.source == "" {
		return Ignored, nil
	}

	if len(r.pending) > 0 || !r.player.Ready() {
		r.pending = append(r.pending, func() error {
			return r.settle(ev.Position, ev.Playing, r.cfg.DriftThreshold)
		})
		return Queued, nil
	}

	if math.Abs(r.player.Position()-ev.Position) <= r.cfg.DriftThreshold && ev.Playing == r.player.IsPlaying() {
		return Ignored, nil
	}

	if err := r.settle(ev.Position, ev.Playing, r.cfg.DriftThreshold); err != nil {
		return Applied, err
	}

	return Applied, nil
}

func (r *Reconciler) mayEmit() bool {
	if r.roomID == "" || r.State() == ApplyingRemote || len(r.pending) > 0 {
		return false
	}

	return r.cfg.Policy != PolicyHostOnly || r.IsHost()
}

func (r *Reconciler) nextControl(action protocol.Action) protocol.ControlInput {
	base := r.applied
	r.applied++

	return protocol.ControlInput{
		RoomID:       r.roomID,
		Action:       action,
		BaseRevision: &base,
	}
}

// HandleLocal turns a player event into a control to send. Events caused by
// the reconciler itself fall inside the guard window and produce nothing.
// The applied revision advances optimistically; a rejection comes back as a
// snapshot.
func (r *Reconciler) HandleLocal(ev player.Event) (protocol.ControlInput, bool, error) {
	if ev.Kind == player.EventReady {
		return protocol.ControlInput{}, false, r.PlayerReady()
	}

	if !r.mayEmit() || r.source == "" {
		return protocol.ControlInput{}, false, nil
	}

	var action protocol.Action
	switch ev.Kind {
	case player.EventPlay:
		action = protocol.ActionPlay
	case player.EventPause:
		action = protocol.ActionPause
	case player.EventSeeked:
		action = protocol.ActionSeek
	default:
		return protocol.ControlInput{}, false, nil
	}

	position := ev.Position
	in := r.nextControl(action)
	in.Position = &position

	return in, true, nil
}

// DetectKind classifies a user supplied source. YouTube URLs are reduced to
// the video id; anything else is played as a file.
func DetectKind(raw string) (protocol.MediaKind, string) {
	if id, err := ytvideodata.ParseID(raw); err == nil {
		return protocol.MediaKindYouTube, id
	}

	return protocol.MediaKindMP4, strings.TrimSpace(raw)
}

// LocalLoad loads raw into the local player and returns the control
// announcing it. It reports false when the policy forbids this member to
// control the room.
func (r *Reconciler) LocalLoad(raw string) (protocol.ControlInput, bool, error) {
	if r.roomID == "" || (r.cfg.Policy == PolicyHostOnly && !r.IsHost()) {
		return protocol.ControlInput{}, false, nil
	}

	kind, source := DetectKind(raw)
	if source == "" {
		return protocol.ControlInput{}, false, fmt.Errorf("%w: empty source", ErrInvalidSource)
	}

	// switching kinds pauses the old player; that pause is not a user action
	r.guard()
	if err := r.player.Load(kind, source); err != nil {
		return protocol.ControlInput{}, false, fmt.Errorf("failed to load %s %q: %w", kind, source, err)
	}
	r.kind, r.source = kind, source
	r.pending = nil

	in := r.nextControl(protocol.ActionLoad)
	in.Source = &source
	in.MediaKind = &kind

	return in, true, nil
}
