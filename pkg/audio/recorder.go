package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/events"
)

// Recorder is the capture capability every variant implements.
type Recorder interface {
	Record(ctx context.Context) error
	Stop() error
	AudioSpecs() Specs
	IsRecording() bool
	HasMediaApproval() bool
	Events() *RecorderEvents
}

type RecorderEvents struct {
	Ready         events.Channel[struct{}]
	DataAvailable events.Channel[Chunk]
	Stopped       events.Channel[struct{}]
	// Recorded carries the whole recording once capture has finished.
	Recorded      events.Channel[[]byte]
	ReadyForAudio events.Channel[string]
}

// ApprovalFunc asks for permission to capture. A nil ApprovalFunc means
// capture is always allowed.
type ApprovalFunc func(ctx context.Context) error

// Capabilities is what the host can offer. NewRecorder picks the first
// usable variant.
type Capabilities struct {
	// NativeBridge is kept for the probe order; no Go host provides it.
	NativeBridge bool

	Stream           io.Reader
	StreamFormat     string
	StreamParameters AudioParameters

	PCM           io.Reader
	PCMParameters AudioParameters

	ChunkSize int
	// Pace throttles capture to real time when set.
	Pace    bool
	Approve ApprovalFunc
	Logger  zerolog.Logger
}

func NewRecorder(caps Capabilities) (Recorder, error) {
	if caps.NativeBridge {
		caps.Logger.Debug().Msg("Native bridge recorder requested but not available")
	}
	if caps.Stream != nil {
		return NewStreamRecorder(caps), nil
	}
	if caps.PCM != nil {
		return NewPCMRecorder(caps), nil
	}
	return nil, ErrNoRecordingCapability
}

// capture is the loop shared by the recorder variants.
type capture struct {
	source    io.Reader
	chunkSize int
	specs     Specs
	pace      bool
	logger    zerolog.Logger
	events    *RecorderEvents

	// frame wraps the bytes published for a chunk; index is 0 for the
	// first chunk of a recording.
	frame func(index int, data []byte) []byte
	// finish turns everything read into the Recorded payload.
	finish func(all []byte) []byte

	approved atomic.Bool

	mu        sync.Mutex
	recording bool
	stop      chan struct{}
	stopOnce  *sync.Once
	done      chan struct{}
}

func newCapture(source io.Reader, chunkSize int, specs Specs, caps Capabilities) *capture {
	c := &capture{
		source:    source,
		chunkSize: chunkSize,
		specs:     specs,
		pace:      caps.Pace,
		logger:    caps.Logger,
		events:    &RecorderEvents{},
		frame:     func(_ int, data []byte) []byte { return data },
		finish:    func(all []byte) []byte { return all },
	}

	if caps.Approve == nil {
		c.approved.Store(true)
		return c
	}

	go func() {
		if err := caps.Approve(context.Background()); err != nil {
			c.logger.Warn().Err(err).Msg("Recorder approval denied")
			return
		}
		c.approve()
	}()
	return c
}

func (c *capture) approve() {
	if c.approved.CompareAndSwap(false, true) {
		c.events.Ready.Publish(struct{}{})
	}
}

func (c *capture) AudioSpecs() Specs {
	return c.specs
}

func (c *capture) HasMediaApproval() bool {
	return c.approved.Load()
}

func (c *capture) Events() *RecorderEvents {
	return c.events
}

func (c *capture) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Record starts the capture goroutine. It returns immediately; the
// recording ends on Stop, on ctx cancellation or when the source is drained.
func (c *capture) Record(ctx context.Context) error {
	if !c.HasMediaApproval() {
		return ErrNoMediaApproval
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return ErrAlreadyRecording
	}
	c.recording = true
	c.stop = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.done = make(chan struct{})

	go c.run(ctx, c.stop, c.done)

	c.logger.Debug().
		Str("format", c.specs.AudioFormat).
		Int("sample_rate", c.specs.AudioParameters.SampleRate).
		Msg("Recording started")
	return nil
}

func (c *capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording {
		return ErrNotRecording
	}
	stop := c.stop
	c.stopOnce.Do(func() { close(stop) })
	return nil
}

// Wait blocks until the current recording has fully finished.
func (c *capture) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *capture) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var all bytes.Buffer
	buf := make([]byte, c.chunkSize)
	index := 0
	started := time.Now()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-stop:
			break loop
		default:
		}

		n, err := c.source.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			all.Write(data)
			c.events.DataAvailable.Publish(Chunk{Data: c.frame(index, data)})
			index++

			if c.pace {
				c.sleepUntil(ctx, stop, started.Add(c.specs.AudioParameters.DurationOf(all.Len())))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Error().Err(err).Msg("Audio source failed")
			}
			break loop
		}
	}

	c.mu.Lock()
	c.recording = false
	c.mu.Unlock()

	c.events.Stopped.Publish(struct{}{})

	final := c.frame(index, nil)
	c.events.DataAvailable.Publish(Chunk{Data: final, Final: true})

	c.logger.Debug().
		Int("chunks", index).
		Int("bytes", all.Len()).
		Msg("Recording finished")

	c.events.Recorded.Publish(c.finish(all.Bytes()))
}

func (c *capture) sleepUntil(ctx context.Context, stop <-chan struct{}, at time.Time) {
	wait := time.Until(at)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-stop:
	}
}
