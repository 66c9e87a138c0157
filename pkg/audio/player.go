package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/events"
)

type Player interface {
	Load(wave []byte) error
	Play(ctx context.Context) error
	Pause() error
	Stop() error
	Scrub(position time.Duration) error
	CurrentTime() time.Duration
	Duration() time.Duration
	Events() *PlayerEvents
}

type PlayerEvents struct {
	Loaded  events.Channel[time.Duration]
	Playing events.Channel[time.Duration]
	Paused  events.Channel[time.Duration]
	Stopped events.Channel[struct{}]
	Ended   events.Channel[struct{}]
}

type PlaybackCapabilities struct {
	Sink   io.Writer
	Logger zerolog.Logger
}

func NewPlayer(caps PlaybackCapabilities) (Player, error) {
	if caps.Sink == nil {
		return nil, ErrNoPlaybackCapability
	}
	return NewWAVPlayer(caps.Sink, caps.Logger), nil
}

const playbackTick = 20 * time.Millisecond

// WAVPlayer writes the PCM of a loaded WAVE file to its sink at the
// file's own byte rate.
type WAVPlayer struct {
	sink   io.Writer
	logger zerolog.Logger
	tick   time.Duration
	events *PlayerEvents

	mu      sync.Mutex
	params  AudioParameters
	pcm     []byte
	pos     int
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewWAVPlayer(sink io.Writer, logger zerolog.Logger) *WAVPlayer {
	return &WAVPlayer{
		sink:   sink,
		logger: logger,
		tick:   playbackTick,
		events: &PlayerEvents{},
	}
}

func (p *WAVPlayer) Events() *PlayerEvents {
	return p.events
}

func (p *WAVPlayer) Load(wave []byte) error {
	params, pcm, err := DecodeWAVE(wave)
	if err != nil {
		return err
	}

	p.halt()

	p.mu.Lock()
	p.params = params
	p.pcm = pcm
	p.pos = 0
	p.mu.Unlock()

	p.events.Loaded.Publish(p.Duration())
	return nil
}

func (p *WAVPlayer) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pcm == nil {
		return ErrNothingLoaded
	}
	if p.cancel != nil {
		return nil
	}
	if p.pos >= len(p.pcm) {
		p.pos = 0
	}

	playCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})

	go p.run(playCtx, p.stopped)

	p.events.Playing.Publish(p.params.DurationOf(p.pos))
	return nil
}

func (p *WAVPlayer) Pause() error {
	if !p.halt() {
		return nil
	}
	p.events.Paused.Publish(p.CurrentTime())
	return nil
}

func (p *WAVPlayer) Stop() error {
	p.halt()

	p.mu.Lock()
	p.pos = 0
	p.mu.Unlock()

	p.events.Stopped.Publish(struct{}{})
	return nil
}

// Scrub moves the play position, clamped to the loaded audio.
func (p *WAVPlayer) Scrub(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pcm == nil {
		return ErrNothingLoaded
	}
	if position < 0 {
		return fmt.Errorf("scrub position %s is negative", position)
	}

	pos := p.params.BytesFor(position)
	if pos > len(p.pcm) {
		pos = len(p.pcm)
	}
	p.pos = pos
	return nil
}

func (p *WAVPlayer) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params.DurationOf(p.pos)
}

func (p *WAVPlayer) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params.DurationOf(len(p.pcm))
}

// halt stops the playback goroutine and reports whether one was running.
func (p *WAVPlayer) halt() bool {
	p.mu.Lock()
	cancel, stopped := p.cancel, p.stopped
	p.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-stopped
	return true
}

func (p *WAVPlayer) run(ctx context.Context, stopped chan struct{}) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	ended := false
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.stopped = nil
		p.mu.Unlock()
		close(stopped)
		if ended {
			p.events.Ended.Publish(struct{}{})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		step := p.params.BytesFor(p.tick)
		if step <= 0 {
			step = p.params.BlockAlign()
		}
		end := p.pos + step
		if end > len(p.pcm) {
			end = len(p.pcm)
		}
		frame := p.pcm[p.pos:end]
		p.pos = end
		done := p.pos >= len(p.pcm)
		p.mu.Unlock()

		if len(frame) > 0 {
			if _, err := p.sink.Write(frame); err != nil {
				p.logger.Error().Err(err).Msg("Playback sink failed")
				return
			}
		}
		if done {
			ended = true
			return
		}
	}
}
