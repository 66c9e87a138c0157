package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/speech-sdk/pkg/models"
)

func (h *Handler) ListOrganisations(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.Organisations.List(r.Context(), listFilters(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list organisations")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) CreateOrganisation(w http.ResponseWriter, r *http.Request) {
	var req models.Organisation
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Invalid organisation")
		return
	}
	org, err := models.NewOrganisation(req.ID, req.Name)
	if err != nil {
		h.fail(w, r, err, "Invalid organisation")
		return
	}

	created, err := h.client.Organisations.Create(r.Context(), org)
	if err != nil {
		h.fail(w, r, err, "Failed to create organisation")
		return
	}
	writeCreated(w, created)
}

func (h *Handler) GetOrganisation(w http.ResponseWriter, r *http.Request) {
	org, err := h.client.Organisations.GetByID(r.Context(), chi.URLParam(r, "org_id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get organisation")
		return
	}
	writeSuccess(w, org)
}

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.Students.List(r.Context(), chi.URLParam(r, "org_id"), listFilters(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list students")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req models.Student
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Invalid student")
		return
	}
	student, err := models.NewStudent(chi.URLParam(r, "org_id"), req.ID, req.FirstName, req.LastName, req.Gender, req.BirthYear)
	if err != nil {
		h.fail(w, r, err, "Invalid student")
		return
	}

	created, err := h.client.Students.Create(r.Context(), student)
	if err != nil {
		h.fail(w, r, err, "Failed to create student")
		return
	}
	writeCreated(w, created)
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := h.client.Students.GetByID(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get student")
		return
	}
	writeSuccess(w, student)
}

func (h *Handler) ListSpeechChallenges(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.SpeechChallenges.List(r.Context(), chi.URLParam(r, "org_id"), listFilters(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list speech challenges")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) CreateSpeechChallenge(w http.ResponseWriter, r *http.Request) {
	var req models.SpeechChallenge
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Invalid speech challenge")
		return
	}
	challenge, err := models.NewSpeechChallenge(chi.URLParam(r, "org_id"), req.ID, req.Topic, nil)
	if err != nil {
		h.fail(w, r, err, "Invalid speech challenge")
		return
	}

	created, err := h.client.SpeechChallenges.Create(r.Context(), challenge)
	if err != nil {
		h.fail(w, r, err, "Failed to create speech challenge")
		return
	}
	writeCreated(w, created)
}

func (h *Handler) GetSpeechChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.client.SpeechChallenges.GetByID(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get speech challenge")
		return
	}
	writeSuccess(w, challenge)
}

func (h *Handler) ListPronunciationChallenges(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.PronunciationChallenges.List(r.Context(), chi.URLParam(r, "org_id"), listFilters(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list pronunciation challenges")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) CreatePronunciationChallenge(w http.ResponseWriter, r *http.Request) {
	var req models.PronunciationChallenge
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Invalid pronunciation challenge")
		return
	}
	challenge, err := models.NewPronunciationChallenge(chi.URLParam(r, "org_id"), req.ID, req.Transcription, nil)
	if err != nil {
		h.fail(w, r, err, "Invalid pronunciation challenge")
		return
	}

	created, err := h.client.PronunciationChallenges.Create(r.Context(), challenge)
	if err != nil {
		h.fail(w, r, err, "Failed to create pronunciation challenge")
		return
	}
	writeCreated(w, created)
}

func (h *Handler) GetPronunciationChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.client.PronunciationChallenges.GetByID(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get pronunciation challenge")
		return
	}
	writeSuccess(w, challenge)
}

func (h *Handler) DeletePronunciationChallenge(w http.ResponseWriter, r *http.Request) {
	orgID, id := chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id")
	if err := h.client.PronunciationChallenges.Delete(r.Context(), orgID, id); err != nil {
		h.fail(w, r, err, "Failed to delete pronunciation challenge")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListChoiceChallenges(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.ChoiceChallenges.List(r.Context(), chi.URLParam(r, "org_id"), listFilters(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list choice challenges")
		return
	}
	writeSuccess(w, page)
}

func (h *Handler) CreateChoiceChallenge(w http.ResponseWriter, r *http.Request) {
	var req models.ChoiceChallenge
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Invalid choice challenge")
		return
	}
	challenge, err := models.NewChoiceChallenge(chi.URLParam(r, "org_id"), req.ID, req.Question, req.Choices)
	if err != nil {
		h.fail(w, r, err, "Invalid choice challenge")
		return
	}

	created, err := h.client.ChoiceChallenges.Create(r.Context(), challenge)
	if err != nil {
		h.fail(w, r, err, "Failed to create choice challenge")
		return
	}
	writeCreated(w, created)
}

func (h *Handler) GetChoiceChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.client.ChoiceChallenges.GetByID(r.Context(), chi.URLParam(r, "org_id"), chi.URLParam(r, "challenge_id"))
	if err != nil {
		h.fail(w, r, err, "Failed to get choice challenge")
		return
	}
	writeSuccess(w, challenge)
}
