package controllers

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/RubachokBoss/speech-sdk/pkg/audio"
	"github.com/RubachokBoss/speech-sdk/pkg/communication"
	"github.com/RubachokBoss/speech-sdk/pkg/events"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
)

type SpeechRecordingController interface {
	Create(ctx context.Context, organisationID string, recording *models.SpeechRecording) (*models.SpeechRecording, error)
	GetByID(ctx context.Context, organisationID, challengeID, id string) (*models.SpeechRecording, error)
	List(ctx context.Context, organisationID, challengeID string, filters url.Values) (*models.Page[models.SpeechRecording], error)
	// Record streams the recorder's audio as a new recording of the challenge.
	Record(ctx context.Context, organisationID, challengeID string, recorder audio.Recorder) (*models.SpeechRecording, error)
}

type speechRecordingController struct {
	api          Requester
	orchestrator *orchestrator
	logger       zerolog.Logger
}

func NewSpeechRecordingController(api Requester, r RPC, sessions *SessionRegistry, bus *events.Bus, logger zerolog.Logger) SpeechRecordingController {
	return &speechRecordingController{
		api:          api,
		orchestrator: newOrchestrator(r, sessions, bus, logger),
		logger:       logger,
	}
}

func recordingsPath(organisationID, challengeID string) string {
	return challengePath(organisationID, challengeSpeech, challengeID) + "/recordings"
}

func (c *speechRecordingController) Create(ctx context.Context, organisationID string, recording *models.SpeechRecording) (*models.SpeechRecording, error) {
	if recording == nil {
		return nil, models.ErrModelRequired
	}
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if recording.ChallengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}

	form := communication.NewFormData()
	if recording.ID != "" {
		form.Set("id", recording.ID)
	}
	if recording.StudentID != "" {
		form.Set("studentId", recording.StudentID)
	}
	form.AddFile("audio", "recording.wav", "audio/wave", recording.Audio)

	created, err := create[models.SpeechRecording](ctx, c.api, recordingsPath(organisationID, recording.ChallengeID), form)
	if err != nil {
		return nil, err
	}
	created.ChallengeID = recording.ChallengeID
	created.Audio = recording.Audio

	c.logger.Info().
		Str("challenge_id", created.ChallengeID).
		Str("recording_id", created.ID).
		Msg("Speech recording uploaded")

	return created, nil
}

func (c *speechRecordingController) GetByID(ctx context.Context, organisationID, challengeID, id string) (*models.SpeechRecording, error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if challengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}
	if id == "" {
		return nil, models.ErrIDRequired
	}

	recording, err := get[models.SpeechRecording](ctx, c.api, withID(recordingsPath(organisationID, challengeID), id))
	if err != nil {
		return nil, err
	}
	recording.ChallengeID = challengeID
	return recording, nil
}

func (c *speechRecordingController) List(ctx context.Context, organisationID, challengeID string, filters url.Values) (*models.Page[models.SpeechRecording], error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if challengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}

	page, err := list[models.SpeechRecording](ctx, c.api, recordingsPath(organisationID, challengeID), filters)
	if err != nil {
		return nil, err
	}
	page.Items = lo.Map(page.Items, func(r models.SpeechRecording, _ int) models.SpeechRecording {
		r.ChallengeID = challengeID
		return r
	})
	return page, nil
}

func (c *speechRecordingController) Record(ctx context.Context, organisationID, challengeID string, recorder audio.Recorder) (*models.SpeechRecording, error) {
	return runStream(ctx, c.orchestrator, recordingFlow, organisationID, challengeID, recorder, nil,
		func(o *streamOutcome) (*models.SpeechRecording, error) {
			recording := &models.SpeechRecording{}
			if err := o.result.Decode(recording); err != nil {
				return nil, err
			}
			recording.ChallengeID = challengeID
			if recording.ID == "" {
				recording.ID = o.remoteID
			}
			recording.Audio = o.audio
			return recording, nil
		})
}
