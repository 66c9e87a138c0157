package controllers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/RubachokBoss/speech-sdk/pkg/communication"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
)

const (
	challengeSpeech        = "speech"
	challengePronunciation = "pronunciation"
	challengeChoice        = "choice"
)

// referenceAudioBody sends JSON unless there is reference audio to upload.
func referenceAudioBody(fields map[string]any, referenceAudio []byte) any {
	fields = compact(fields)
	if len(referenceAudio) == 0 {
		return fields
	}

	form := communication.NewFormData()
	for key, value := range fields {
		if s, ok := value.(string); ok {
			form.Set(key, s)
		}
	}
	return form.AddFile("referenceAudio", "reference.wav", "audio/wave", referenceAudio)
}

type SpeechChallengeController interface {
	Create(ctx context.Context, challenge *models.SpeechChallenge) (*models.SpeechChallenge, error)
	GetByID(ctx context.Context, organisationID, id string) (*models.SpeechChallenge, error)
	List(ctx context.Context, organisationID string, filters url.Values) (*models.Page[models.SpeechChallenge], error)
}

type speechChallengeController struct {
	api    Requester
	logger zerolog.Logger
}

func NewSpeechChallengeController(api Requester, logger zerolog.Logger) SpeechChallengeController {
	return &speechChallengeController{
		api:    api,
		logger: logger,
	}
}

func (c *speechChallengeController) Create(ctx context.Context, challenge *models.SpeechChallenge) (*models.SpeechChallenge, error) {
	if challenge == nil {
		return nil, models.ErrModelRequired
	}
	if challenge.OrganisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}

	body := referenceAudioBody(map[string]any{
		"id":    challenge.ID,
		"topic": challenge.Topic,
	}, challenge.ReferenceAudio)

	created, err := create[models.SpeechChallenge](ctx, c.api, challengePath(challenge.OrganisationID, challengeSpeech, ""), body)
	if err != nil {
		return nil, err
	}
	created.OrganisationID = challenge.OrganisationID

	c.logger.Info().
		Str("organisation_id", created.OrganisationID).
		Str("challenge_id", created.ID).
		Msg("Speech challenge created")

	return created, nil
}

func (c *speechChallengeController) GetByID(ctx context.Context, organisationID, id string) (*models.SpeechChallenge, error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if id == "" {
		return nil, models.ErrChallengeIDRequired
	}

	challenge, err := get[models.SpeechChallenge](ctx, c.api, challengePath(organisationID, challengeSpeech, id))
	if err != nil {
		return nil, err
	}
	challenge.OrganisationID = organisationID
	return challenge, nil
}

func (c *speechChallengeController) List(ctx context.Context, organisationID string, filters url.Values) (*models.Page[models.SpeechChallenge], error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}

	page, err := list[models.SpeechChallenge](ctx, c.api, challengePath(organisationID, challengeSpeech, ""), filters)
	if err != nil {
		return nil, err
	}
	page.Items = lo.Map(page.Items, func(ch models.SpeechChallenge, _ int) models.SpeechChallenge {
		ch.OrganisationID = organisationID
		return ch
	})
	return page, nil
}

type PronunciationChallengeController interface {
	Create(ctx context.Context, challenge *models.PronunciationChallenge) (*models.PronunciationChallenge, error)
	GetByID(ctx context.Context, organisationID, id string) (*models.PronunciationChallenge, error)
	List(ctx context.Context, organisationID string, filters url.Values) (*models.Page[models.PronunciationChallenge], error)
	Delete(ctx context.Context, organisationID, id string) error
}

type pronunciationChallengeController struct {
	api    Requester
	logger zerolog.Logger
}

func NewPronunciationChallengeController(api Requester, logger zerolog.Logger) PronunciationChallengeController {
	return &pronunciationChallengeController{
		api:    api,
		logger: logger,
	}
}

func (c *pronunciationChallengeController) Create(ctx context.Context, challenge *models.PronunciationChallenge) (*models.PronunciationChallenge, error) {
	if challenge == nil {
		return nil, models.ErrModelRequired
	}
	if challenge.OrganisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if challenge.Transcription == "" {
		return nil, models.ErrTranscriptionRequired
	}

	body := referenceAudioBody(map[string]any{
		"id":            challenge.ID,
		"transcription": challenge.Transcription,
	}, challenge.ReferenceAudio)

	created, err := create[models.PronunciationChallenge](ctx, c.api, challengePath(challenge.OrganisationID, challengePronunciation, ""), body)
	if err != nil {
		return nil, err
	}
	created.OrganisationID = challenge.OrganisationID
	if created.Status == "" {
		created.Status = models.ChallengeStatusUnprepared
	}

	c.logger.Info().
		Str("organisation_id", created.OrganisationID).
		Str("challenge_id", created.ID).
		Str("status", created.Status.String()).
		Msg("Pronunciation challenge created")

	return created, nil
}

func (c *pronunciationChallengeController) GetByID(ctx context.Context, organisationID, id string) (*models.PronunciationChallenge, error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if id == "" {
		return nil, models.ErrChallengeIDRequired
	}

	challenge, err := get[models.PronunciationChallenge](ctx, c.api, challengePath(organisationID, challengePronunciation, id))
	if err != nil {
		return nil, err
	}
	challenge.OrganisationID = organisationID
	return challenge, nil
}

func (c *pronunciationChallengeController) List(ctx context.Context, organisationID string, filters url.Values) (*models.Page[models.PronunciationChallenge], error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}

	page, err := list[models.PronunciationChallenge](ctx, c.api, challengePath(organisationID, challengePronunciation, ""), filters)
	if err != nil {
		return nil, err
	}
	page.Items = lo.Map(page.Items, func(ch models.PronunciationChallenge, _ int) models.PronunciationChallenge {
		ch.OrganisationID = organisationID
		return ch
	})
	return page, nil
}

func (c *pronunciationChallengeController) Delete(ctx context.Context, organisationID, id string) error {
	if organisationID == "" {
		return models.ErrOrganisationIDRequired
	}
	if id == "" {
		return models.ErrChallengeIDRequired
	}

	if _, err := c.api.AuthorisedRequest(ctx, http.MethodDelete, challengePath(organisationID, challengePronunciation, id), nil, nil); err != nil {
		return err
	}

	c.logger.Info().
		Str("organisation_id", organisationID).
		Str("challenge_id", id).
		Msg("Pronunciation challenge deleted")
	return nil
}

type ChoiceChallengeController interface {
	Create(ctx context.Context, challenge *models.ChoiceChallenge) (*models.ChoiceChallenge, error)
	GetByID(ctx context.Context, organisationID, id string) (*models.ChoiceChallenge, error)
	List(ctx context.Context, organisationID string, filters url.Values) (*models.Page[models.ChoiceChallenge], error)
}

type choiceChallengeController struct {
	api    Requester
	logger zerolog.Logger
}

func NewChoiceChallengeController(api Requester, logger zerolog.Logger) ChoiceChallengeController {
	return &choiceChallengeController{
		api:    api,
		logger: logger,
	}
}

func (c *choiceChallengeController) Create(ctx context.Context, challenge *models.ChoiceChallenge) (*models.ChoiceChallenge, error) {
	if challenge == nil {
		return nil, models.ErrModelRequired
	}
	if challenge.OrganisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if len(challenge.Choices) == 0 {
		return nil, models.ErrChoicesRequired
	}

	body := compact(map[string]any{
		"id":       challenge.ID,
		"question": challenge.Question,
	})
	body["choices"] = challenge.Choices

	created, err := create[models.ChoiceChallenge](ctx, c.api, challengePath(challenge.OrganisationID, challengeChoice, ""), body)
	if err != nil {
		return nil, err
	}
	created.OrganisationID = challenge.OrganisationID

	c.logger.Info().
		Str("organisation_id", created.OrganisationID).
		Str("challenge_id", created.ID).
		Int("choices", len(created.Choices)).
		Msg("Choice challenge created")

	return created, nil
}

func (c *choiceChallengeController) GetByID(ctx context.Context, organisationID, id string) (*models.ChoiceChallenge, error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if id == "" {
		return nil, models.ErrChallengeIDRequired
	}

	challenge, err := get[models.ChoiceChallenge](ctx, c.api, challengePath(organisationID, challengeChoice, id))
	if err != nil {
		return nil, err
	}
	challenge.OrganisationID = organisationID
	return challenge, nil
}

func (c *choiceChallengeController) List(ctx context.Context, organisationID string, filters url.Values) (*models.Page[models.ChoiceChallenge], error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}

	page, err := list[models.ChoiceChallenge](ctx, c.api, challengePath(organisationID, challengeChoice, ""), filters)
	if err != nil {
		return nil, err
	}
	page.Items = lo.Map(page.Items, func(ch models.ChoiceChallenge, _ int) models.ChoiceChallenge {
		ch.OrganisationID = organisationID
		return ch
	})
	return page, nil
}
