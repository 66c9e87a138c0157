package models

import (
	"encoding/json"
	"time"
)

// SessionRecord is the stored history of one streaming session.
type SessionRecord struct {
	Token       string          `json:"token"`
	Kind        string          `json:"kind"`
	ChallengeID string          `json:"challenge_id"`
	RemoteID    string          `json:"remote_id,omitempty"`
	Stage       string          `json:"stage"`
	Step        string          `json:"step,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	AudioKey    string          `json:"audio_key,omitempty"`
	AudioFormat string          `json:"audio_format,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

func (r *SessionRecord) Finished() bool {
	return r.FinishedAt != nil
}

type HistoryFilter struct {
	Kind        string
	ChallengeID string
	Stage       string
	Limit       int
	Offset      int
}

type HistoryPage struct {
	Items  []SessionRecord `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
