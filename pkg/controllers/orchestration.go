package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/audio"
	"github.com/RubachokBoss/speech-sdk/pkg/events"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
	"github.com/RubachokBoss/speech-sdk/pkg/rpc"
	"github.com/RubachokBoss/speech-sdk/pkg/streaming"
	"github.com/RubachokBoss/speech-sdk/pkg/wamp"
)

const (
	KindRecording   = "recording"
	KindRecognition = "recognition"
	KindAnalysis    = "analysis"
)

// streamKind names the rpcs of one streaming flow.
type streamKind struct {
	name      string
	init      string
	challenge string
	extra     string
	audio     string
	write     string
	terminal  string
}

var (
	recordingFlow = streamKind{
		name:      KindRecording,
		init:      "recording.init_recording",
		challenge: "recording.init_challenge",
		audio:     "recording.init_audio",
		write:     "recording.write",
		terminal:  "recording.close",
	}
	recognitionFlow = streamKind{
		name:      KindRecognition,
		init:      "choice.init_recognition",
		challenge: "choice.init_challenge",
		audio:     "choice.init_audio",
		write:     "choice.write",
		terminal:  "choice.recognise",
	}
	analysisFlow = streamKind{
		name:      KindAnalysis,
		init:      "pronunciation.init_analysis",
		challenge: "pronunciation.init_challenge",
		extra:     "pronunciation.alignment",
		audio:     "pronunciation.init_audio",
		write:     "pronunciation.write",
		terminal:  "pronunciation.analyse",
	}
)

// streamOutcome is what a finished flow hands back for mapping.
type streamOutcome struct {
	remoteID string
	extra    *wamp.Result
	result   *wamp.Result
	audio    []byte
}

type orchestrator struct {
	rpc      RPC
	streamer *streaming.Streamer
	sessions *SessionRegistry
	bus      *events.Bus
	logger   zerolog.Logger
}

func newOrchestrator(r RPC, sessions *SessionRegistry, bus *events.Bus, logger zerolog.Logger) *orchestrator {
	if sessions == nil {
		sessions = NewSessionRegistry()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &orchestrator{
		rpc:      r,
		streamer: streaming.NewStreamer(r, bus, logger),
		sessions: sessions,
		bus:      bus,
		logger:   logger,
	}
}

// runStream runs one flow: init, init_challenge (and the extra step),
// init_audio, chunk writes, terminal rpc. progress receives the terminal
// rpc's progressive results; mapResult turns the outcome into the model.
func runStream[T any](
	ctx context.Context,
	o *orchestrator,
	kind streamKind,
	organisationID, challengeID string,
	recorder audio.Recorder,
	progress func(*wamp.Result),
	mapResult func(*streamOutcome) (*T, error),
) (*T, error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if challengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}
	if recorder == nil {
		return nil, ErrRecorderRequired
	}
	if !o.rpc.IsOpen() {
		return nil, ErrWebsocketNotOpen
	}
	if recorder.IsRecording() {
		return nil, ErrRecorderBusy
	}

	session, err := o.sessions.Acquire(kind.name, challengeID, recorder)
	if err != nil {
		return nil, err
	}
	defer o.sessions.Release(session.Token)

	log := o.logger.With().
		Str("session", session.Token).
		Str("kind", kind.name).
		Str("challenge_id", challengeID).
		Logger()

	o.publish(session, events.StageStarted, nil)

	outcome, err := o.run(ctx, kind, session, organisationID, challengeID, recorder, progress, log)
	var result *T
	if err == nil {
		result, err = mapResult(outcome)
	}
	if err != nil {
		log.Error().Err(err).Str("remote_id", outcome.remoteID).Msg("Streaming session failed")
		o.publish(session, events.StageFailed, func(e *events.TaskEvent) {
			e.RemoteID = outcome.remoteID
			e.Error = err.Error()
		})
		return nil, err
	}

	o.publish(session, events.StageCompleted, func(e *events.TaskEvent) {
		e.RemoteID = outcome.remoteID
		e.Result = result
		e.Audio = outcome.audio
		e.AudioFormat = recorder.AudioSpecs().AudioFormat
	})

	log.Info().Str("remote_id", outcome.remoteID).Msg("Streaming session completed")
	return result, nil
}

func (o *orchestrator) run(
	ctx context.Context,
	kind streamKind,
	session *Session,
	organisationID, challengeID string,
	recorder audio.Recorder,
	progress func(*wamp.Result),
	log zerolog.Logger,
) (*streamOutcome, error) {
	outcome := &streamOutcome{}

	res, err := o.rpc.Call(ctx, kind.init, rpc.CallOptions{})
	if err != nil {
		return outcome, err
	}
	if err := res.Decode(&outcome.remoteID); err != nil || outcome.remoteID == "" {
		return outcome, fmt.Errorf("%s returned no session id", kind.init)
	}
	o.sessions.SetRemoteID(session.Token, outcome.remoteID)
	o.step(session, outcome.remoteID, kind.init)

	if _, err := o.rpc.Call(ctx, kind.challenge, rpc.CallOptions{
		Args: []any{outcome.remoteID, organisationID, challengeID},
	}); err != nil {
		return outcome, err
	}
	o.step(session, outcome.remoteID, kind.challenge)

	if kind.extra != "" {
		if outcome.extra, err = o.rpc.Call(ctx, kind.extra, rpc.CallOptions{
			Args: []any{outcome.remoteID},
		}); err != nil {
			return outcome, err
		}
		o.step(session, outcome.remoteID, kind.extra)
	}

	if err := waitForApproval(ctx, recorder); err != nil {
		return outcome, err
	}

	if _, err := o.streamer.PrepareServerForAudio(ctx, outcome.remoteID, recorder, kind.audio); err != nil {
		return outcome, err
	}
	o.step(session, outcome.remoteID, kind.audio)

	recorded := make(chan []byte, 1)
	unsubscribe := recorder.Events().Recorded.Once(func(data []byte) { recorded <- data })
	defer unsubscribe()

	forwarder := o.streamer.Forward(outcome.remoteID, recorder, kind.write)
	if err := recorder.Record(ctx); err != nil {
		forwarder.Close()
		return outcome, fmt.Errorf("failed to start recorder: %w", err)
	}
	log.Debug().Str("remote_id", outcome.remoteID).Msg("Recording audio")

	if err := forwarder.Wait(ctx); err != nil {
		_ = recorder.Stop()
		return outcome, err
	}

	select {
	case outcome.audio = <-recorded:
	case <-ctx.Done():
		return outcome, ctx.Err()
	}
	o.step(session, outcome.remoteID, kind.write)

	onProgress := func(r *wamp.Result) {
		o.publish(session, events.StageProgress, func(e *events.TaskEvent) {
			e.RemoteID = outcome.remoteID
			e.Step = kind.terminal
			e.Result = r.Kwargs
		})
		if progress != nil {
			progress(r)
		}
	}
	if progress == nil {
		onProgress = nil
	}

	outcome.result, err = o.rpc.Call(ctx, kind.terminal, rpc.CallOptions{
		Args:     []any{outcome.remoteID},
		Progress: onProgress,
	})
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (o *orchestrator) step(session *Session, remoteID, step string) {
	o.publish(session, events.StageProgress, func(e *events.TaskEvent) {
		e.RemoteID = remoteID
		e.Step = step
	})
}

func (o *orchestrator) publish(session *Session, stage events.Stage, fill func(e *events.TaskEvent)) {
	e := events.TaskEvent{
		Session:     session.Token,
		Kind:        session.Kind,
		Stage:       stage,
		ChallengeID: session.ChallengeID,
		Timestamp:   time.Now(),
	}
	if fill != nil {
		fill(&e)
	}
	o.bus.Tasks.Publish(e)
}

// waitForApproval returns once the recorder may capture.
func waitForApproval(ctx context.Context, recorder audio.Recorder) error {
	if recorder.HasMediaApproval() {
		return nil
	}

	ready := make(chan struct{}, 1)
	cancel := recorder.Events().Ready.Once(func(struct{}) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	defer cancel()

	if recorder.HasMediaApproval() {
		return nil
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
