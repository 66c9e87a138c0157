package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/internal/integration"
	imodels "github.com/RubachokBoss/speech-sdk/internal/models"
	"github.com/RubachokBoss/speech-sdk/pkg/audio"
	"github.com/RubachokBoss/speech-sdk/pkg/client"
	"github.com/RubachokBoss/speech-sdk/pkg/communication"
	"github.com/RubachokBoss/speech-sdk/pkg/controllers"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
	"github.com/RubachokBoss/speech-sdk/pkg/rpc"
)

// HistoryReader is the read side of the session history store.
type HistoryReader interface {
	GetBySession(ctx context.Context, token string) (*imodels.SessionRecord, error)
	List(ctx context.Context, filter imodels.HistoryFilter) (*imodels.HistoryPage, error)
}

// StatsProvider reports worker pool statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

type Handler struct {
	client        *client.Client
	history       HistoryReader
	archive       integration.AudioArchive
	stats         StatsProvider
	maxUploadSize int64
	logger        zerolog.Logger
}

type Options struct {
	History       HistoryReader
	Archive       integration.AudioArchive
	Stats         StatsProvider
	MaxUploadSize int64
}

func NewHandler(c *client.Client, opts Options, logger zerolog.Logger) *Handler {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 32 << 20
	}
	return &Handler{
		client:        c,
		history:       opts.History,
		archive:       opts.Archive,
		stats:         opts.Stats,
		maxUploadSize: opts.MaxUploadSize,
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/status", h.GetStatus)

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/connection", func(r chi.Router) {
			r.Get("/", h.GetConnection)
			r.Post("/open", h.OpenConnection)
			r.Post("/close", h.CloseConnection)
		})

		api.Route("/organisations", func(r chi.Router) {
			r.Get("/", h.ListOrganisations)
			r.Post("/", h.CreateOrganisation)

			r.Route("/{org_id}", func(r chi.Router) {
				r.Get("/", h.GetOrganisation)

				r.Route("/students", func(r chi.Router) {
					r.Get("/", h.ListStudents)
					r.Post("/", h.CreateStudent)
					r.Get("/{id}", h.GetStudent)
				})

				r.Route("/challenges/speech", func(r chi.Router) {
					r.Get("/", h.ListSpeechChallenges)
					r.Post("/", h.CreateSpeechChallenge)
					r.Get("/{challenge_id}", h.GetSpeechChallenge)
					r.Get("/{challenge_id}/recordings", h.ListRecordings)
					r.Post("/{challenge_id}/recordings", h.Record)
					r.Get("/{challenge_id}/recordings/{id}", h.GetRecording)
				})

				r.Route("/challenges/pronunciation", func(r chi.Router) {
					r.Get("/", h.ListPronunciationChallenges)
					r.Post("/", h.CreatePronunciationChallenge)
					r.Get("/{challenge_id}", h.GetPronunciationChallenge)
					r.Delete("/{challenge_id}", h.DeletePronunciationChallenge)
					r.Get("/{challenge_id}/analyses", h.ListAnalyses)
					r.Post("/{challenge_id}/analyses", h.Analyse)
					r.Get("/{challenge_id}/analyses/{id}", h.GetAnalysis)
				})

				r.Route("/challenges/choice", func(r chi.Router) {
					r.Get("/", h.ListChoiceChallenges)
					r.Post("/", h.CreateChoiceChallenge)
					r.Get("/{challenge_id}", h.GetChoiceChallenge)
					r.Get("/{challenge_id}/recognitions", h.ListRecognitions)
					r.Post("/{challenge_id}/recognitions", h.Recognise)
					r.Get("/{challenge_id}/recognitions/{id}", h.GetRecognition)
				})
			})
		})

		api.Get("/sessions", h.ListActiveSessions)

		api.Route("/history", func(r chi.Router) {
			r.Get("/", h.ListHistory)
			r.Get("/{token}", h.GetHistory)
			r.Get("/{token}/audio", h.GetHistoryAudio)
		})
	})
}

// statusFor maps SDK errors onto HTTP status codes.
func statusFor(err error) int {
	var apiErr *communication.APIError
	var callErr *rpc.CallError

	switch {
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.As(err, &callErr):
		return http.StatusBadGateway
	case errors.Is(err, controllers.ErrSessionInProgress),
		errors.Is(err, controllers.ErrRecorderBusy),
		errors.Is(err, audio.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, controllers.ErrWebsocketNotOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, communication.ErrNoAuthorizationToken),
		errors.Is(err, communication.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, errAudioTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case isValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var validationErrors = []error{
	models.ErrModelRequired,
	models.ErrInvalidID,
	models.ErrIDRequired,
	models.ErrOrganisationIDRequired,
	models.ErrTenantIDRequired,
	models.ErrChallengeIDRequired,
	models.ErrStudentIDRequired,
	models.ErrTranscriptionRequired,
	models.ErrQuestionRequired,
	models.ErrChoicesRequired,
	models.ErrInvalidBirthYear,
	models.ErrInvalidGender,
	models.ErrInvalidStatus,
	models.ErrInvalidFilters,
	controllers.ErrRecorderRequired,
	audio.ErrInvalidWAVE,
	errInvalidBody,
	errAudioRequired,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	log := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg(msg)
	} else {
		log.Warn().Err(err).Int("status", status).Msg(msg)
	}

	var apiErr *communication.APIError
	var callErr *rpc.CallError
	switch {
	case errors.As(err, &apiErr) && apiErr.Payload != nil:
		writeJSON(w, status, map[string]interface{}{
			"error":   http.StatusText(status),
			"message": err.Error(),
			"details": apiErr.Payload,
		})
	case errors.As(err, &callErr):
		writeJSON(w, status, map[string]interface{}{
			"error":   http.StatusText(status),
			"message": callErr.Message,
			"details": callErr,
		})
	default:
		writeError(w, status, err.Error())
	}
}

// listFilters passes the query string through to the api as list filters.
func listFilters(r *http.Request) url.Values {
	return r.URL.Query()
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

var (
	errInvalidBody   = errors.New("invalid request body")
	errAudioRequired = errors.New("request body must be a wave file")
	errAudioTooLarge = errors.New("audio exceeds the upload limit")
)

func getIntQueryParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, http.StatusOK, response)
}

func writeCreated(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}
