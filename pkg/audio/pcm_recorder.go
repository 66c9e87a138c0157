package audio

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const pcmChunkDuration = 100 * time.Millisecond

// PCMRecorder captures raw interleaved PCM. The first streamed chunk opens
// with a WAVE header of unknown length; the Recorded payload is a complete
// WAVE file.
type PCMRecorder struct {
	*capture
}

func NewPCMRecorder(caps Capabilities) *PCMRecorder {
	params := caps.PCMParameters.withDefaults()

	size := caps.ChunkSize
	if size <= 0 {
		size = params.BytesFor(pcmChunkDuration)
	}
	if align := params.BlockAlign(); align > 0 && size%align != 0 {
		size += align - size%align
	}

	c := newCapture(caps.PCM, size, Specs{AudioFormat: FormatWAVE, AudioParameters: params}, caps)
	c.frame = func(index int, data []byte) []byte {
		if index != 0 {
			return data
		}
		return append(WAVEHeader(params, streamingDataSize), data...)
	}
	c.finish = func(all []byte) []byte {
		return EncodeWAVE(params, all)
	}

	return &PCMRecorder{capture: c}
}

// NewWAVRecorder replays a WAVE file through the PCM variant.
func NewWAVRecorder(wave []byte, pace bool, logger zerolog.Logger) (*PCMRecorder, error) {
	params, pcm, err := DecodeWAVE(wave)
	if err != nil {
		return nil, err
	}
	return NewPCMRecorder(Capabilities{
		PCM:           bytes.NewReader(pcm),
		PCMParameters: params,
		Pace:          pace,
		Logger:        logger,
	}), nil
}

func NewWAVFileRecorder(path string, pace bool, logger zerolog.Logger) (*PCMRecorder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return NewWAVRecorder(data, pace, logger)
}
