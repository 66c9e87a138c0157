package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/internal/integration"
	"github.com/RubachokBoss/speech-sdk/pkg/events"
)

const sinkListenerKey = "event-sink"

// HistoryWriter is the part of the history store the sink writes to.
type HistoryWriter interface {
	Record(ctx context.Context, event events.TaskEvent) error
	SetAudioKey(ctx context.Context, token, key string) error
}

// EventSink moves session events off the streaming goroutine and into the
// history store, the broker and the audio archive. Each of the three is
// optional.
type EventSink struct {
	pool      *WorkerPool
	history   HistoryWriter
	publisher integration.EventPublisher
	archive   integration.AudioArchive
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewEventSink(pool *WorkerPool, history HistoryWriter, publisher integration.EventPublisher, archive integration.AudioArchive, logger zerolog.Logger) *EventSink {
	return &EventSink{
		pool:      pool,
		history:   history,
		publisher: publisher,
		archive:   archive,
		timeout:   30 * time.Second,
		logger:    logger,
		now:       time.Now,
	}
}

// Attach subscribes the sink to the task channel of bus. The returned
// function detaches it.
func (s *EventSink) Attach(bus *events.Bus) func() {
	return bus.Tasks.SubscribeKey(sinkListenerKey, s.Handle)
}

// Handle queues event behind earlier events of the same session. It never
// blocks the publisher: when the session's queue is full the event is dropped.
func (s *EventSink) Handle(event events.TaskEvent) {
	if err := s.pool.TrySubmit(event.Session, func() { s.process(event) }); err != nil {
		s.logger.Error().Err(err).
			Str("session", event.Session).
			Str("stage", string(event.Stage)).
			Msg("Dropped session event")
	}
}

func (s *EventSink) process(event events.TaskEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log := s.logger.With().
		Str("session", event.Session).
		Str("kind", event.Kind).
		Str("stage", string(event.Stage)).
		Logger()

	if s.history != nil {
		if err := s.history.Record(ctx, event); err != nil {
			log.Error().Err(err).Msg("Failed to record session event")
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).Msg("Failed to publish session event")
		}
	}

	if s.archive != nil && event.Stage == events.StageCompleted && len(event.Audio) > 0 {
		s.archiveAudio(ctx, log, event)
	}
}

func (s *EventSink) archiveAudio(ctx context.Context, log zerolog.Logger, event events.TaskEvent) {
	at := event.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	key := integration.AudioKey(event.Session, event.AudioFormat, at)

	if err := s.archive.Store(ctx, key, event.Audio, integration.ContentType(event.AudioFormat)); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to archive audio")
		return
	}

	if s.history != nil {
		if err := s.history.SetAudioKey(ctx, event.Session, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to attach audio to history")
			return
		}
	}

	log.Info().Str("key", key).Int("size", len(event.Audio)).Msg("Audio archived")
}
