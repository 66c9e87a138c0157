package controllers

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/RubachokBoss/speech-sdk/pkg/audio"
)

// Session is one streaming orchestration in flight.
type Session struct {
	Token       string    `json:"token"`
	Kind        string    `json:"kind"`
	ChallengeID string    `json:"challenge_id"`
	RemoteID    string    `json:"remote_id,omitempty"`
	Started     time.Time `json:"started"`
}

// SessionRegistry allows one session per (kind, challenge) and one per
// recorder at a time.
type SessionRegistry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	byChallenge map[string]string
	byRecorder  map[audio.Recorder]string
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[string]*Session),
		byChallenge: make(map[string]string),
		byRecorder:  make(map[audio.Recorder]string),
	}
}

func challengeKey(kind, challengeID string) string {
	return kind + "/" + challengeID
}

func (r *SessionRegistry) Acquire(kind, challengeID string, recorder audio.Recorder) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := challengeKey(kind, challengeID)
	if _, busy := r.byChallenge[key]; busy {
		return nil, ErrSessionInProgress
	}
	if _, busy := r.byRecorder[recorder]; busy {
		return nil, ErrRecorderBusy
	}

	s := &Session{
		Token:       uuid.New().String(),
		Kind:        kind,
		ChallengeID: challengeID,
		Started:     time.Now(),
	}
	r.sessions[s.Token] = s
	r.byChallenge[key] = s.Token
	r.byRecorder[recorder] = s.Token

	copied := *s
	return &copied, nil
}

func (r *SessionRegistry) SetRemoteID(token, remoteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.RemoteID = remoteID
	}
}

// Release forgets the session. Releasing an unknown token is a no-op.
func (r *SessionRegistry) Release(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return
	}
	delete(r.sessions, token)
	delete(r.byChallenge, challengeKey(s.Kind, s.ChallengeID))
	for rec, t := range r.byRecorder {
		if t == token {
			delete(r.byRecorder, rec)
		}
	}
}

func (r *SessionRegistry) Get(token string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Active lists the sessions in flight, oldest first.
func (r *SessionRegistry) Active() []Session {
	r.mu.Lock()
	active := lo.Map(lo.Values(r.sessions), func(s *Session, _ int) Session { return *s })
	r.mu.Unlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].Started.Before(active[j].Started)
	})
	return active
}
