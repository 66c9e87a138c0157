package events

import "time"

type Stage string

const (
	StageStarted   Stage = "started"
	StageProgress  Stage = "progress"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// TaskEvent reports the lifecycle of one streaming session.
type TaskEvent struct {
	Session     string    `json:"session"`
	Kind        string    `json:"kind"`
	Stage       Stage     `json:"stage"`
	ChallengeID string    `json:"challenge_id"`
	RemoteID    string    `json:"remote_id,omitempty"`
	Step        string    `json:"step,omitempty"`
	Result      any       `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Audio       []byte    `json:"-"`
	AudioFormat string    `json:"audio_format,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Bus groups the SDK-wide channels.
type Bus struct {
	Tasks Channel[TaskEvent]
	// ReadyForAudio carries the session id the server is ready to receive
	// audio for.
	ReadyForAudio Channel[string]
}

func NewBus() *Bus {
	return &Bus{}
}
