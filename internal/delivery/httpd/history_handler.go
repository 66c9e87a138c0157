package httpd

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/speech-sdk/internal/integration"
	imodels "github.com/RubachokBoss/speech-sdk/internal/models"
)

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "session history is not configured")
		return
	}

	q := r.URL.Query()
	page, err := h.history.List(r.Context(), imodels.HistoryFilter{
		Kind:        q.Get("kind"),
		ChallengeID: q.Get("challenge_id"),
		Stage:       q.Get("stage"),
		Limit:       getIntQueryParam(r, "limit", 50),
		Offset:      getIntQueryParam(r, "offset", 0),
	})
	if err != nil {
		h.fail(w, r, err, "Failed to list session history")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	record, ok := h.historyRecord(w, r)
	if !ok {
		return
	}
	writeSuccess(w, record)
}

// GetHistoryAudio redirects to a presigned archive URL, or streams the
// object itself with ?download=true.
func (h *Handler) GetHistoryAudio(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "audio archive is not configured")
		return
	}
	record, ok := h.historyRecord(w, r)
	if !ok {
		return
	}
	if record.AudioKey == "" {
		writeError(w, http.StatusNotFound, "no audio archived for this session")
		return
	}

	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); !download {
		url, err := h.archive.Presign(r.Context(), record.AudioKey)
		if err != nil {
			h.fail(w, r, err, "Failed to presign audio")
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	body, size, contentType, err := h.archive.Fetch(r.Context(), record.AudioKey)
	if err != nil {
		if errors.Is(err, integration.ErrAudioNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.fail(w, r, err, "Failed to fetch audio")
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = integration.ContentType(record.AudioFormat)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, body)
}

func (h *Handler) historyRecord(w http.ResponseWriter, r *http.Request) (*imodels.SessionRecord, bool) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "session history is not configured")
		return nil, false
	}

	token := chi.URLParam(r, "token")
	record, err := h.history.GetBySession(r.Context(), token)
	if err != nil {
		h.fail(w, r, err, "Failed to get session history")
		return nil, false
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return record, true
}
