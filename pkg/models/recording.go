package models

import "time"

type SpeechRecording struct {
	ChallengeID string    `json:"challengeId"`
	StudentID   string    `json:"studentId,omitempty"`
	ID          string    `json:"id,omitempty"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	AudioURL    string    `json:"audioUrl,omitempty"`
	Audio       []byte    `json:"-"`
}

func NewSpeechRecording(challengeID, studentID, id string, audio []byte) (*SpeechRecording, error) {
	if challengeID == "" {
		return nil, ErrChallengeIDRequired
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	return &SpeechRecording{
		ChallengeID: challengeID,
		StudentID:   studentID,
		ID:          id,
		Audio:       audio,
	}, nil
}

type ChoiceRecognition struct {
	ChallengeID string    `json:"challengeId"`
	StudentID   string    `json:"studentId,omitempty"`
	ID          string    `json:"id,omitempty"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	AudioURL    string    `json:"audioUrl,omitempty"`
	Recognised  string    `json:"recognised"`
}

func NewChoiceRecognition(challengeID, studentID, id string) (*ChoiceRecognition, error) {
	if challengeID == "" {
		return nil, ErrChallengeIDRequired
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	return &ChoiceRecognition{
		ChallengeID: challengeID,
		StudentID:   studentID,
		ID:          id,
	}, nil
}
