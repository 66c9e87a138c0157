package httpd

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/audio"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
)

const ndjsonContentType = "application/x-ndjson"

// recorderFromBody turns a WAVE request body into a recorder that replays
// it without pacing.
func (h *Handler) recorderFromBody(w http.ResponseWriter, r *http.Request) (*audio.PCMRecorder, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errAudioTooLarge
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, errAudioRequired
	}

	return audio.NewWAVRecorder(body, false, *zerolog.Ctx(r.Context()))
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	recorder, err := h.recorderFromBody(w, r)
	if err != nil {
		h.fail(w, r, err, "Invalid recording audio")
		return
	}

	recording, err := h.client.SpeechRecordings.Record(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"), recorder)
	if err != nil {
		h.fail(w, r, err, "Speech recording failed")
		return
	}
	writeCreated(w, recording)
}

func (h *Handler) Recognise(w http.ResponseWriter, r *http.Request) {
	recorder, err := h.recorderFromBody(w, r)
	if err != nil {
		h.fail(w, r, err, "Invalid recognition audio")
		return
	}

	recognition, err := h.client.ChoiceRecognitions.Recognise(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"), recorder)
	if err != nil {
		h.fail(w, r, err, "Choice recognition failed")
		return
	}
	writeCreated(w, recognition)
}

type streamLine struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Analyse answers with one JSON document, or with a line per partial
// analysis followed by the result when the client accepts NDJSON.
func (h *Handler) Analyse(w http.ResponseWriter, r *http.Request) {
	recorder, err := h.recorderFromBody(w, r)
	if err != nil {
		h.fail(w, r, err, "Invalid analysis audio")
		return
	}
	orgID, challengeID := chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id")

	if !strings.Contains(r.Header.Get("Accept"), ndjsonContentType) {
		analysis, err := h.client.PronunciationAnalyses.Analyse(r.Context(), orgID, challengeID, recorder, nil)
		if err != nil {
			h.fail(w, r, err, "Pronunciation analysis failed")
			return
		}
		writeCreated(w, analysis)
		return
	}

	var (
		mu      sync.Mutex
		started bool
	)
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	emit := func(line streamLine) {
		mu.Lock()
		defer mu.Unlock()
		if !started {
			w.Header().Set("Content-Type", ndjsonContentType)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		enc.Encode(line)
		if flusher != nil {
			flusher.Flush()
		}
	}

	analysis, err := h.client.PronunciationAnalyses.Analyse(r.Context(), orgID, challengeID, recorder, func(partial *models.PronunciationAnalysis) {
		emit(streamLine{Type: "progress", Data: partial})
	})

	mu.Lock()
	headerSent := started
	mu.Unlock()

	if err != nil {
		if !headerSent {
			h.fail(w, r, err, "Pronunciation analysis failed")
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Pronunciation analysis failed")
		emit(streamLine{Type: "error", Error: err.Error()})
		return
	}
	emit(streamLine{Type: "result", Data: analysis})
}

func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.SpeechRecordings.List(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"), listFilters(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list speech recordings")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	recording, err := h.client.SpeechRecordings.GetByID(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get speech recording")
		return
	}
	writeSuccess(w, recording)
}

func (h *Handler) ListRecognitions(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.ChoiceRecognitions.List(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"), listFilters(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list choice recognitions")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) GetRecognition(w http.ResponseWriter, r *http.Request) {
	recognition, err := h.client.ChoiceRecognitions.GetByID(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get choice recognition")
		return
	}
	writeSuccess(w, recognition)
}

func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.PronunciationAnalyses.List(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"), listFilters(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list pronunciation analyses")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.client.PronunciationAnalyses.GetByID(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get pronunciation analysis")
		return
	}
	writeSuccess(w, analysis)
}

func (h *Handler) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.client.Sessions.Active())
}
