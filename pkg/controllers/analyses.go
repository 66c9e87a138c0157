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
	"github.com/RubachokBoss/speech-sdk/pkg/wamp"
)

type PronunciationAnalysisController interface {
	Create(ctx context.Context, organisationID string, analysis *models.PronunciationAnalysis, recording []byte) (*models.PronunciationAnalysis, error)
	GetByID(ctx context.Context, organisationID, challengeID, id string) (*models.PronunciationAnalysis, error)
	List(ctx context.Context, organisationID, challengeID string, filters url.Values) (*models.Page[models.PronunciationAnalysis], error)
	// Analyse streams the recorder's audio and returns the scored words.
	// progress, when set, receives the partial analyses the server sends
	// while it works.
	Analyse(ctx context.Context, organisationID, challengeID string, recorder audio.Recorder, progress func(*models.PronunciationAnalysis)) (*models.PronunciationAnalysis, error)
}

type pronunciationAnalysisController struct {
	api          Requester
	orchestrator *orchestrator
	logger       zerolog.Logger
}

func NewPronunciationAnalysisController(api Requester, r RPC, sessions *SessionRegistry, bus *events.Bus, logger zerolog.Logger) PronunciationAnalysisController {
	return &pronunciationAnalysisController{
		api:          api,
		orchestrator: newOrchestrator(r, sessions, bus, logger),
		logger:       logger,
	}
}

func analysesPath(organisationID, challengeID string) string {
	return challengePath(organisationID, challengePronunciation, challengeID) + "/analyses"
}

func (c *pronunciationAnalysisController) Create(ctx context.Context, organisationID string, analysis *models.PronunciationAnalysis, recording []byte) (*models.PronunciationAnalysis, error) {
	if analysis == nil {
		return nil, models.ErrModelRequired
	}
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if analysis.ChallengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}

	form := communication.NewFormData()
	if analysis.ID != "" {
		form.Set("id", analysis.ID)
	}
	if analysis.StudentID != "" {
		form.Set("studentId", analysis.StudentID)
	}
	form.AddFile("audio", "analysis.wav", "audio/wave", recording)

	created, err := create[models.PronunciationAnalysis](ctx, c.api, analysesPath(organisationID, analysis.ChallengeID), form)
	if err != nil {
		return nil, err
	}
	created.ChallengeID = analysis.ChallengeID

	c.logger.Info().
		Str("challenge_id", created.ChallengeID).
		Str("analysis_id", created.ID).
		Msg("Pronunciation analysis uploaded")

	return created, nil
}

func (c *pronunciationAnalysisController) GetByID(ctx context.Context, organisationID, challengeID, id string) (*models.PronunciationAnalysis, error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if challengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}
	if id == "" {
		return nil, models.ErrIDRequired
	}

	analysis, err := get[models.PronunciationAnalysis](ctx, c.api, withID(analysesPath(organisationID, challengeID), id))
	if err != nil {
		return nil, err
	}
	analysis.ChallengeID = challengeID
	return analysis, nil
}

func (c *pronunciationAnalysisController) List(ctx context.Context, organisationID, challengeID string, filters url.Values) (*models.Page[models.PronunciationAnalysis], error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if challengeID == "" {
		return nil, models.ErrChallengeIDRequired
	}

	page, err := list[models.PronunciationAnalysis](ctx, c.api, analysesPath(organisationID, challengeID), filters)
	if err != nil {
		return nil, err
	}
	page.Items = lo.Map(page.Items, func(a models.PronunciationAnalysis, _ int) models.PronunciationAnalysis {
		a.ChallengeID = challengeID
		return a
	})
	return page, nil
}

func (c *pronunciationAnalysisController) Analyse(ctx context.Context, organisationID, challengeID string, recorder audio.Recorder, progress func(*models.PronunciationAnalysis)) (*models.PronunciationAnalysis, error) {
	onProgress := func(r *wamp.Result) {
		if progress == nil {
			return
		}
		partial := &models.PronunciationAnalysis{}
		if err := r.Decode(partial); err != nil {
			c.logger.Warn().Err(err).Msg("Ignoring undecodable analysis progress")
			return
		}
		partial.ChallengeID = challengeID
		progress(partial)
	}

	return runStream(ctx, c.orchestrator, analysisFlow, organisationID, challengeID, recorder, onProgress,
		func(o *streamOutcome) (*models.PronunciationAnalysis, error) {
			analysis := &models.PronunciationAnalysis{}
			if err := o.result.Decode(analysis); err != nil {
				return nil, err
			}
			analysis.ChallengeID = challengeID
			if analysis.ID == "" {
				analysis.ID = o.remoteID
			}

			alignment, err := decodeAlignment(o.extra)
			if err != nil {
				return nil, err
			}
			analysis.ReferenceAlignment = alignment
			return analysis, nil
		})
}

// decodeAlignment accepts {"alignment": [...]} as keyword arguments or the
// bare word list as the first argument.
func decodeAlignment(r *wamp.Result) ([]models.Word, error) {
	if r == nil {
		return nil, nil
	}
	if len(r.Kwargs) > 0 {
		var wrapped struct {
			Alignment []models.Word `json:"alignment"`
		}
		if err := r.Decode(&wrapped); err != nil {
			return nil, err
		}
		return wrapped.Alignment, nil
	}

	var words []models.Word
	if err := r.Decode(&words); err != nil {
		return nil, err
	}
	return words, nil
}
