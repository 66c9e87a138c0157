// Package audio provides the recorders and players the streaming layer
// drives. Recorders turn a Go audio source into chunk events; players write
// decoded PCM to a sink in real time.
package audio

import (
	"errors"
	"time"
)

const (
	FormatWAVE = "audio/wave"
	FormatOgg  = "audio/ogg"
	FormatWebM = "audio/webm"
)

var (
	ErrNoRecordingCapability = errors.New("no recording capability available")
	ErrNoPlaybackCapability  = errors.New("no playback capability available")
	ErrAlreadyRecording      = errors.New("recorder is already recording")
	ErrNotRecording          = errors.New("recorder is not recording")
	ErrNoMediaApproval       = errors.New("recorder has no media approval")
	ErrNothingLoaded         = errors.New("no audio loaded")
	ErrInvalidWAVE           = errors.New("invalid wave data")
)

// AudioParameters describe the captured audio. SampleWidth is in bits.
type AudioParameters struct {
	Channels    int `json:"channels"`
	SampleWidth int `json:"sampleWidth"`
	SampleRate  int `json:"sampleRate"`
	FrameRate   int `json:"frameRate"`
}

// Specs is the format descriptor sent to the server before streaming.
type Specs struct {
	AudioFormat     string          `json:"audioFormat"`
	AudioParameters AudioParameters `json:"audioParameters"`
}

// Kwargs renders the parameters as rpc keyword arguments.
func (p AudioParameters) Kwargs() map[string]any {
	return map[string]any{
		"channels":    p.Channels,
		"sampleWidth": p.SampleWidth,
		"sampleRate":  p.SampleRate,
		"frameRate":   p.FrameRate,
	}
}

func (p AudioParameters) withDefaults() AudioParameters {
	if p.Channels <= 0 {
		p.Channels = 1
	}
	if p.SampleWidth <= 0 {
		p.SampleWidth = 16
	}
	if p.SampleRate <= 0 {
		p.SampleRate = 48000
	}
	if p.FrameRate <= 0 {
		p.FrameRate = p.SampleRate
	}
	return p
}

// BlockAlign is the size in bytes of one frame across all channels.
func (p AudioParameters) BlockAlign() int {
	return p.Channels * ((p.SampleWidth + 7) / 8)
}

func (p AudioParameters) ByteRate() int {
	return p.SampleRate * p.BlockAlign()
}

// BytesFor returns the frame-aligned byte count covering d.
func (p AudioParameters) BytesFor(d time.Duration) int {
	align := p.BlockAlign()
	if align == 0 {
		return 0
	}
	frames := int(int64(p.SampleRate) * int64(d) / int64(time.Second))
	return frames * align
}

// DurationOf returns the playing time of n bytes of PCM.
func (p AudioParameters) DurationOf(n int) time.Duration {
	rate := p.ByteRate()
	if rate == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// Chunk is one piece of captured audio. The chunk raised after the
// recorder stops has Final set and may be empty.
type Chunk struct {
	Data  []byte
	Final bool
}
