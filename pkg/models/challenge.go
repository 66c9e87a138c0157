package models

import "time"

type ChallengeStatus string

const (
	ChallengeStatusUnprepared ChallengeStatus = "unprepared"
	ChallengeStatusPreparing  ChallengeStatus = "preparing"
	ChallengeStatusPrepared   ChallengeStatus = "prepared"
)

func (s ChallengeStatus) String() string {
	return string(s)
}

func IsValidChallengeStatus(status string) bool {
	switch ChallengeStatus(status) {
	case ChallengeStatusUnprepared, ChallengeStatusPreparing, ChallengeStatusPrepared:
		return true
	default:
		return false
	}
}

type SpeechChallenge struct {
	OrganisationID    string          `json:"-"`
	ID                string          `json:"id,omitempty"`
	Topic             string          `json:"topic,omitempty"`
	ReferenceAudio    []byte          `json:"-"`
	ReferenceAudioURL string          `json:"referenceAudioUrl,omitempty"`
	Status            ChallengeStatus `json:"status,omitempty"`
	Created           time.Time       `json:"created"`
	Updated           time.Time       `json:"updated"`
}

func NewSpeechChallenge(organisationID, id, topic string, referenceAudio []byte) (*SpeechChallenge, error) {
	if organisationID == "" {
		return nil, ErrOrganisationIDRequired
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	return &SpeechChallenge{
		OrganisationID: organisationID,
		ID:             id,
		Topic:          topic,
		ReferenceAudio: referenceAudio,
	}, nil
}

type PronunciationChallenge struct {
	OrganisationID    string          `json:"-"`
	ID                string          `json:"id,omitempty"`
	Transcription     string          `json:"transcription"`
	ReferenceAudio    []byte          `json:"-"`
	ReferenceAudioURL string          `json:"referenceAudioUrl,omitempty"`
	Status            ChallengeStatus `json:"status,omitempty"`
	Created           time.Time       `json:"created"`
	Updated           time.Time       `json:"updated"`
}

func NewPronunciationChallenge(organisationID, id, transcription string, referenceAudio []byte) (*PronunciationChallenge, error) {
	if organisationID == "" {
		return nil, ErrOrganisationIDRequired
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if transcription == "" {
		return nil, ErrTranscriptionRequired
	}
	return &PronunciationChallenge{
		OrganisationID: organisationID,
		ID:             id,
		Transcription:  transcription,
		ReferenceAudio: referenceAudio,
		Status:         ChallengeStatusUnprepared,
	}, nil
}

type ChoiceChallenge struct {
	OrganisationID string          `json:"-"`
	ID             string          `json:"id,omitempty"`
	Question       string          `json:"question,omitempty"`
	Status         ChallengeStatus `json:"status,omitempty"`
	Choices        []string        `json:"choices"`
	Created        time.Time       `json:"created"`
	Updated        time.Time       `json:"updated"`
}

func NewChoiceChallenge(organisationID, id, question string, choices []string) (*ChoiceChallenge, error) {
	if organisationID == "" {
		return nil, ErrOrganisationIDRequired
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if len(choices) == 0 {
		return nil, ErrChoicesRequired
	}

	ordered := make([]string, len(choices))
	copy(ordered, choices)

	return &ChoiceChallenge{
		OrganisationID: organisationID,
		ID:             id,
		Question:       question,
		Choices:        ordered,
	}, nil
}
