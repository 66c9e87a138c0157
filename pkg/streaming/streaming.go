// Package streaming moves recorder output over the websocket session.
package streaming

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/audio"
	"github.com/RubachokBoss/speech-sdk/pkg/events"
	"github.com/RubachokBoss/speech-sdk/pkg/rpc"
	"github.com/RubachokBoss/speech-sdk/pkg/wamp"
)

const (
	Encoding = "base64"

	subscriptionKey = "streaming"
)

// Caller is the slice of *rpc.Manager the streamer needs.
type Caller interface {
	Call(ctx context.Context, rpcName string, opts rpc.CallOptions) (*wamp.Result, error)
	Register(ctx context.Context, rpcName string, options map[string]any, handler wamp.InvocationHandler) (uint64, error)
	Unregister(ctx context.Context, registration uint64) error
}

type Streamer struct {
	rpc    Caller
	bus    *events.Bus
	logger zerolog.Logger
}

func NewStreamer(caller Caller, bus *events.Bus, logger zerolog.Logger) *Streamer {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Streamer{
		rpc:    caller,
		bus:    bus,
		logger: logger,
	}
}

// PrepareServerForAudio sends the recorder's format descriptor and returns
// id once the server acknowledged it.
func (s *Streamer) PrepareServerForAudio(ctx context.Context, id string, recorder audio.Recorder, rpcName string) (string, error) {
	specs := recorder.AudioSpecs()

	if _, err := s.rpc.Call(ctx, rpcName, rpc.CallOptions{
		Args:   []any{id, specs.AudioFormat},
		Kwargs: specs.AudioParameters.Kwargs(),
	}); err != nil {
		return "", err
	}

	s.logger.Debug().
		Str("id", id).
		Str("rpc", rpcName).
		Str("format", specs.AudioFormat).
		Msg("Server ready for audio")

	s.bus.ReadyForAudio.Publish(id)
	recorder.Events().ReadyForAudio.Publish(id)
	return id, nil
}

// Forwarder writes the chunks of one recorder, in order, through a write rpc.
type Forwarder struct {
	id      string
	rpcName string
	rpc     Caller
	queue   *chunkQueue
	cancel  func()
	logger  zerolog.Logger
}

// Forward subscribes to recorder chunks right away; call Wait to send them.
// A second Forward on the same recorder replaces the first subscription.
func (s *Streamer) Forward(id string, recorder audio.Recorder, rpcName string) *Forwarder {
	q := newChunkQueue()
	cancel := recorder.Events().DataAvailable.SubscribeKey(subscriptionKey, q.push)
	return &Forwarder{
		id:      id,
		rpcName: rpcName,
		rpc:     s.rpc,
		queue:   q,
		cancel:  cancel,
		logger:  s.logger,
	}
}

// Wait sends queued chunks one at a time and returns after the write for
// the final chunk has completed. The first failed write ends the stream.
func (f *Forwarder) Wait(ctx context.Context) error {
	defer f.cancel()

	for sent := 0; ; sent++ {
		chunk, err := f.queue.pop(ctx)
		if err != nil {
			return err
		}

		if _, err := f.rpc.Call(ctx, f.rpcName, rpc.CallOptions{
			Args: []any{f.id, base64.StdEncoding.EncodeToString(chunk.Data), Encoding},
		}); err != nil {
			f.logger.Error().Err(err).Str("id", f.id).Int("chunk", sent).Msg("Failed to write audio chunk")
			return err
		}

		if chunk.Final {
			f.logger.Debug().Str("id", f.id).Int("chunks", sent+1).Msg("Audio stream written")
			return nil
		}
	}
}

// Close drops the subscription without waiting for the final chunk.
func (f *Forwarder) Close() {
	f.cancel()
}

// EncodeAndSendAudioOnDataAvailable is Forward followed by Wait. The
// recorder has to be started from another goroutine.
func (s *Streamer) EncodeAndSendAudioOnDataAvailable(ctx context.Context, id string, recorder audio.Recorder, rpcName string) error {
	return s.Forward(id, recorder, rpcName).Wait(ctx)
}

// Stream is a procedure the server can invoke to pull recorder audio.
type Stream struct {
	Registration uint64

	done chan struct{}
	once sync.Once
	err  error
}

func (st *Stream) finish(err error) {
	st.once.Do(func() {
		st.err = err
		close(st.done)
	})
}

// Wait blocks until the invoked stream delivered its final chunk.
func (st *Stream) Wait(ctx context.Context) error {
	select {
	case <-st.done:
		return st.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterStreamForRecorder registers rpcName as a callee. When invoked,
// chunks go out as progressive results, the final chunk as the result, and
// the procedure unregisters itself.
func (s *Streamer) RegisterStreamForRecorder(ctx context.Context, recorder audio.Recorder, rpcName string) (*Stream, error) {
	st := &Stream{done: make(chan struct{})}

	handler := func(invCtx context.Context, inv *wamp.Invocation) (*wamp.Result, error) {
		q := newChunkQueue()
		cancel := recorder.Events().DataAvailable.SubscribeKey(subscriptionKey, q.push)
		defer cancel()

		result, err := s.pump(invCtx, inv, q)

		go func() {
			if uerr := s.rpc.Unregister(context.Background(), st.Registration); uerr != nil {
				s.logger.Warn().Err(uerr).Str("rpc", rpcName).Msg("Failed to unregister stream")
			}
		}()
		st.finish(err)
		return result, err
	}

	registration, err := s.rpc.Register(ctx, rpcName, nil, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to register stream %s: %w", rpcName, err)
	}
	st.Registration = registration
	return st, nil
}

func (s *Streamer) pump(ctx context.Context, inv *wamp.Invocation, q *chunkQueue) (*wamp.Result, error) {
	for {
		chunk, err := q.pop(ctx)
		if err != nil {
			return nil, err
		}

		payload := wamp.List{base64.StdEncoding.EncodeToString(chunk.Data), Encoding}
		if chunk.Final {
			return &wamp.Result{Args: payload}, nil
		}
		if err := inv.SendProgress(ctx, payload, nil); err != nil {
			return nil, err
		}
	}
}

// chunkQueue is an unbounded FIFO; push never blocks the publisher.
type chunkQueue struct {
	mu     sync.Mutex
	items  []audio.Chunk
	notify chan struct{}
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{notify: make(chan struct{}, 1)}
}

func (q *chunkQueue) push(c audio.Chunk) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *chunkQueue) pop(ctx context.Context) (audio.Chunk, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items[0] = audio.Chunk{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return c, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return audio.Chunk{}, ctx.Err()
		}
	}
}
