package streaming

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/audio"
	"github.com/RubachokBoss/speech-sdk/pkg/events"
	"github.com/RubachokBoss/speech-sdk/pkg/rpc"
	"github.com/RubachokBoss/speech-sdk/pkg/wamp"
)

type call struct {
	name string
	opts rpc.CallOptions
}

type fakeCaller struct {
	mu           sync.Mutex
	calls        []call
	failOn       string
	handler      wamp.InvocationHandler
	unregistered chan uint64
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{unregistered: make(chan uint64, 1)}
}

func (f *fakeCaller) Call(ctx context.Context, rpcName string, opts rpc.CallOptions) (*wamp.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: rpcName, opts: opts})
	if rpcName == f.failOn {
		return nil, &rpc.CallError{Message: "write refused"}
	}
	return &wamp.Result{}, nil
}

func (f *fakeCaller) Register(ctx context.Context, rpcName string, options map[string]any, handler wamp.InvocationHandler) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return 11, nil
}

func (f *fakeCaller) Unregister(ctx context.Context, registration uint64) error {
	f.unregistered <- registration
	return nil
}

func (f *fakeCaller) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeRecorder struct {
	events *audio.RecorderEvents
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{events: &audio.RecorderEvents{}}
}

func (r *fakeRecorder) Record(context.Context) error { return nil }
func (r *fakeRecorder) Stop() error                  { return nil }
func (r *fakeRecorder) IsRecording() bool            { return false }
func (r *fakeRecorder) HasMediaApproval() bool       { return true }
func (r *fakeRecorder) Events() *audio.RecorderEvents {
	return r.events
}
func (r *fakeRecorder) AudioSpecs() audio.Specs {
	return audio.Specs{
		AudioFormat:     audio.FormatWAVE,
		AudioParameters: audio.AudioParameters{Channels: 1, SampleWidth: 16, SampleRate: 16000, FrameRate: 16000},
	}
}

func (r *fakeRecorder) emit(chunks ...audio.Chunk) {
	for _, c := range chunks {
		r.events.DataAvailable.Publish(c)
	}
}

func TestPrepareServerForAudio(t *testing.T) {
	caller := newFakeCaller()
	bus := events.NewBus()
	s := NewStreamer(caller, bus, zerolog.Nop())
	rec := newFakeRecorder()

	var busID, recID string
	bus.ReadyForAudio.Subscribe(func(id string) { busID = id })
	rec.events.ReadyForAudio.Subscribe(func(id string) { recID = id })

	id, err := s.PrepareServerForAudio(context.Background(), "rec-1", rec, "recording.init_audio")
	if err != nil || id != "rec-1" {
		t.Fatalf("prepare: %q, %v", id, err)
	}

	calls := caller.snapshot()
	if len(calls) != 1 || calls[0].name != "recording.init_audio" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if calls[0].opts.Args[0] != "rec-1" || calls[0].opts.Args[1] != audio.FormatWAVE {
		t.Fatalf("unexpected args %v", calls[0].opts.Args)
	}
	if calls[0].opts.Kwargs["sampleRate"] != 16000 {
		t.Fatalf("unexpected kwargs %v", calls[0].opts.Kwargs)
	}
	if busID != "rec-1" || recID != "rec-1" {
		t.Fatalf("ready for audio not broadcast: %q %q", busID, recID)
	}
}

func TestForward_WritesInOrderUntilFinal(t *testing.T) {
	caller := newFakeCaller()
	s := NewStreamer(caller, nil, zerolog.Nop())
	rec := newFakeRecorder()

	f := s.Forward("a-1", rec, "pronunciation.write")
	rec.emit(
		audio.Chunk{Data: []byte("one")},
		audio.Chunk{Data: []byte("two")},
		audio.Chunk{Data: []byte("three"), Final: true},
		audio.Chunk{Data: []byte("ignored")},
	)

	if err := f.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	calls := caller.snapshot()
	if len(calls) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(calls))
	}
	for i, want := range []string{"one", "two", "three"} {
		args := calls[i].opts.Args
		if args[0] != "a-1" || args[2] != Encoding {
			t.Fatalf("unexpected args %v", args)
		}
		data, err := base64.StdEncoding.DecodeString(args[1].(string))
		if err != nil || string(data) != want {
			t.Fatalf("write %d: got %q (%v)", i, data, err)
		}
	}
	if rec.events.DataAvailable.Len() != 0 {
		t.Fatalf("forwarder should unsubscribe when done")
	}
}

func TestForward_FailedWriteStops(t *testing.T) {
	caller := newFakeCaller()
	caller.failOn = "choice.write"
	s := NewStreamer(caller, nil, zerolog.Nop())
	rec := newFakeRecorder()

	f := s.Forward("r-1", rec, "choice.write")
	rec.emit(audio.Chunk{Data: []byte("x")}, audio.Chunk{Final: true})

	var callErr *rpc.CallError
	if err := f.Wait(context.Background()); !errors.As(err, &callErr) {
		t.Fatalf("expected the rpc error, got %v", err)
	}
	if len(caller.snapshot()) != 1 {
		t.Fatalf("no write should follow a failure")
	}
}

func TestForward_ReplacesPreviousSubscription(t *testing.T) {
	s := NewStreamer(newFakeCaller(), nil, zerolog.Nop())
	rec := newFakeRecorder()

	s.Forward("x", rec, "recording.write")
	s.Forward("x", rec, "recording.write")

	if n := rec.events.DataAvailable.Len(); n != 1 {
		t.Fatalf("expected a single listener, got %d", n)
	}
}

func TestForward_ContextCancel(t *testing.T) {
	s := NewStreamer(newFakeCaller(), nil, zerolog.Nop())
	f := s.Forward("x", newFakeRecorder(), "recording.write")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRegisterStreamForRecorder(t *testing.T) {
	caller := newFakeCaller()
	s := NewStreamer(caller, nil, zerolog.Nop())
	rec := newFakeRecorder()

	st, err := s.RegisterStreamForRecorder(context.Background(), rec, "stream.1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	type outcome struct {
		res *wamp.Result
		err error
	}
	out := make(chan outcome, 1)
	go func() {
		res, err := caller.handler(context.Background(), &wamp.Invocation{})
		out <- outcome{res, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rec.events.DataAvailable.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("handler never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	rec.emit(audio.Chunk{Data: []byte("end"), Final: true})

	o := <-out
	if o.err != nil {
		t.Fatalf("handler: %v", o.err)
	}
	data, _ := base64.StdEncoding.DecodeString(o.res.Args[0].(string))
	if string(data) != "end" {
		t.Fatalf("unexpected final payload %q", data)
	}
	if err := st.Wait(context.Background()); err != nil {
		t.Fatalf("stream wait: %v", err)
	}

	select {
	case id := <-caller.unregistered:
		if id != 11 {
			t.Fatalf("unregistered %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not unregister itself")
	}
}

func TestRegisterStreamForRecorder_ProgressRequired(t *testing.T) {
	caller := newFakeCaller()
	s := NewStreamer(caller, nil, zerolog.Nop())
	rec := newFakeRecorder()

	st, err := s.RegisterStreamForRecorder(context.Background(), rec, "stream.2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	go func() { _, _ = caller.handler(context.Background(), &wamp.Invocation{}) }()
	for rec.events.DataAvailable.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	rec.emit(audio.Chunk{Data: []byte("mid")})

	if err := st.Wait(context.Background()); !errors.Is(err, wamp.ErrProgressNotRequested) {
		t.Fatalf("expected ErrProgressNotRequested, got %v", err)
	}
}
