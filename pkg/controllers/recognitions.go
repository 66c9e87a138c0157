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

type ChoiceRecognitionController interface {
	Create(ctx context.Context, organisationID string, recognition *models.ChoiceRecognition, recording []byte) (*models.ChoiceRecognition, error)
	GetByID(ctx context.Context, organisationID, challengeID, id string) (*models.ChoiceRecognition, error)
	List(ctx context.Context, organisationID, challengeID string, filters url.Values) (*models.Page[models.ChoiceRecognition], error)
	// Recognise streams the recorder's audio and returns the choice the
	// server recognised.
	Recognise(ctx context.Context, organisationID, challengeID string, recorder audio.Recorder) (*models.ChoiceRecognition, error)
}

type choiceRecognitionController struct {
	api          Requester
	orchestrator *orchestrator
	logger       zerolog.Logger
}

func NewChoiceRecognitionController(api Requester, r RPC, sessions *SessionRegistry, bus *events.Bus, logger zerolog.Logger) ChoiceRecognitionController {
	return &choiceRecognitionController{
		api:          api,
		orchestrator: newOrchestrator(r, sessions, bus, logger),
		logger:       logger,
	}
}

func recognitionsPath(organisationID, challengeID string) string {
	return challengePath(organisationID, challengeChoice, challengeID) + "/recognitions"
}

func (c *choiceRecognitionController) Create(ctx context.Context, organisationID string, recognition *models.ChoiceRecognition, recording []byte) (*models.ChoiceRecognition, error) {
	if recognition == nil {
		return nil, models.ErrModelRequired
	}
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if recognition.ChallengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}

	form := communication.NewFormData()
	if recognition.ID != "" {
		form.Set("id", recognition.ID)
	}
	if recognition.StudentID != "" {
		form.Set("studentId", recognition.StudentID)
	}
	if recognition.Recognised != "" {
		form.Set("recognised", recognition.Recognised)
	}
	form.AddFile("audio", "recognition.wav", "audio/wave", recording)

	created, err := create[models.ChoiceRecognition](ctx, c.api, recognitionsPath(organisationID, recognition.ChallengeID), form)
	if err != nil {
		return nil, err
	}
	created.ChallengeID = recognition.ChallengeID

	c.logger.Info().
		Str("challenge_id", created.ChallengeID).
		Str("recognition_id", created.ID).
		Msg("Choice recognition uploaded")

	return created, nil
}

func (c *choiceRecognitionController) GetByID(ctx context.Context, organisationID, challengeID, id string) (*models.ChoiceRecognition, error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if challengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}
	if id == "" {
		return nil, models.ErrIDRequired
	}

	recognition, err := get[models.ChoiceRecognition](ctx, c.api, withID(recognitionsPath(organisationID, challengeID), id))
	if err != nil {
		return nil, err
	}
	recognition.ChallengeID = challengeID
	return recognition, nil
}

func (c *choiceRecognitionController) List(ctx context.Context, organisationID, challengeID string, filters url.Values) (*models.Page[models.ChoiceRecognition], error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if challengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}

	page, err := list[models.ChoiceRecognition](ctx, c.api, recognitionsPath(organisationID, challengeID), filters)
	if err != nil {
		return nil, err
	}
	page.Items = lo.Map(page.Items, func(r models.ChoiceRecognition, _ int) models.ChoiceRecognition {
		r.ChallengeID = challengeID
		return r
	})
	return page, nil
}

func (c *choiceRecognitionController) Recognise(ctx context.Context, organisationID, challengeID string, recorder audio.Recorder) (*models.ChoiceRecognition, error) {
	return runStream(ctx, c.orchestrator, recognitionFlow, organisationID, challengeID, recorder, nil,
		func(o *streamOutcome) (*models.ChoiceRecognition, error) {
			recognition := &models.ChoiceRecognition{}
			if err := o.result.Decode(recognition); err != nil {
				return nil, err
			}
			recognition.ChallengeID = challengeID
			if recognition.ID == "" {
				recognition.ID = o.remoteID
			}
			return recognition, nil
		})
}
