package models

import "errors"

// Validation errors. They are returned before any network activity.
var (
	ErrModelRequired          = errors.New("model is required")
	ErrInvalidID              = errors.New("id must be a non-empty string when set")
	ErrIDRequired             = errors.New("id is required")
	ErrOrganisationIDRequired = errors.New("organisation id is required")
	ErrTenantIDRequired       = errors.New("tenant id is required")
	ErrChallengeIDRequired    = errors.New("challenge id is required")
	ErrStudentIDRequired      = errors.New("student id is required")
	ErrTranscriptionRequired  = errors.New("transcription is required")
	ErrQuestionRequired       = errors.New("question is required")
	ErrChoicesRequired        = errors.New("choices are required")
	ErrInvalidBirthYear       = errors.New("birth year must not be negative")
	ErrInvalidGender          = errors.New("gender must be male or female")
	ErrInvalidStatus          = errors.New("invalid challenge status")
	ErrInvalidFilters         = errors.New("filters should be an ordered key-value query object")
)

func validateID(id string) error {
	if id == "" {
		return nil
	}
	for _, r := range id {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return nil
		}
	}
	return ErrInvalidID
}
