package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const DefaultInterval = 500 * time.Millisecond

// Sampler reads the local playback state.
type Sampler interface {
	Position() float64
	IsPlaying() bool
}

type Beat struct {
	Position float64
	Playing  bool
}

// Broadcaster samples the player on a fixed period and hands every sample
// to send. It runs only while the local member is host.
type Broadcaster struct {
	sampler  Sampler
	send     func(Beat) error
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(sampler Sampler, send func(Beat) error, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Broadcaster{
		sampler:  sampler,
		send:     send,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// Start begins broadcasting. Calling it while running does nothing.
func (b *Broadcaster) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	ticker := b.clock.Ticker(b.interval)
	go b.run(ctx, ticker, b.done)

	b.logger.DebugContext(ctx, "heartbeat started", "interval", b.interval)
}

func (b *Broadcaster) run(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat := Beat{
				Position: b.sampler.Position(),
				Playing:  b.sampler.IsPlaying(),
			}
			if err := b.send(beat); err != nil {
				b.logger.WarnContext(ctx, "failed to send heartbeat", "error", err)
			}
		}
	}
}

// Stop halts broadcasting and waits until no further beat can be sent.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	b.logger.Debug("heartbeat stopped")
}

func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.cancel != nil
}
