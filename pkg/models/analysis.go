package models

import (
	"encoding/json"
	"time"
)

type PronunciationAnalysis struct {
	ChallengeID string    `json:"challengeId"`
	StudentID   string    `json:"studentId,omitempty"`
	ID          string    `json:"id,omitempty"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	AudioURL    string    `json:"audioUrl,omitempty"`
	Score       float64   `json:"score"`
	Words       []Word    `json:"words"`
	// ReferenceAlignment is the alignment the server computed for the
	// challenge transcription before any audio was sent.
	ReferenceAlignment []Word `json:"referenceAlignment,omitempty"`
}

func NewPronunciationAnalysis(challengeID, studentID, id string) (*PronunciationAnalysis, error) {
	if challengeID == "" {
		return nil, ErrChallengeIDRequired
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	return &PronunciationAnalysis{
		ChallengeID: challengeID,
		StudentID:   studentID,
		ID:          id,
	}, nil
}

// Word is a sequence of chunks. The server sends a word either as a bare
// array of chunks or as an object with a chunks field; both decode.
type Word struct {
	Chunks []WordChunk `json:"chunks"`
}

func (w *Word) UnmarshalJSON(data []byte) error {
	var chunks []WordChunk
	if err := json.Unmarshal(data, &chunks); err == nil {
		w.Chunks = chunks
		return nil
	}

	type plain Word
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*w = Word(p)
	return nil
}

// Text concatenates the graphemes of every chunk.
func (w Word) Text() string {
	text := ""
	for _, c := range w.Chunks {
		text += c.Graphemes
	}
	return text
}

type WordChunk struct {
	Graphemes string    `json:"graphemes"`
	Score     float64   `json:"score"`
	Verdict   Verdict   `json:"verdict"`
	Phonemes  []Phoneme `json:"phonemes,omitempty"`
}

func (c *WordChunk) UnmarshalJSON(data []byte) error {
	type plain WordChunk
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Verdict == "" {
		p.Verdict = VerdictForScore(p.Score)
	}
	*c = WordChunk(p)
	return nil
}

type Phoneme struct {
	IPA     string  `json:"ipa"`
	Score   float64 `json:"score"`
	Bad     bool    `json:"bad"`
	Verdict Verdict `json:"verdict"`
}

func (p *Phoneme) UnmarshalJSON(data []byte) error {
	type plain Phoneme
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Verdict == "" {
		v.Verdict = VerdictForScore(v.Score)
	}
	*p = Phoneme(v)
	return nil
}
