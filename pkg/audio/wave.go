package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cryptix/wav"
)

const waveHeaderSize = 44

// streamingDataSize marks a WAVE header whose length is not known yet.
const streamingDataSize = math.MaxUint32 - 36

// WAVEHeader returns the canonical 44 byte PCM header for dataSize bytes.
func WAVEHeader(p AudioParameters, dataSize uint32) []byte {
	var buf bytes.Buffer
	buf.Grow(waveHeaderSize)

	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36)+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(1))
	_ = binary.Write(&buf, le, uint16(p.Channels))
	_ = binary.Write(&buf, le, uint32(p.SampleRate))
	_ = binary.Write(&buf, le, uint32(p.ByteRate()))
	_ = binary.Write(&buf, le, uint16(p.BlockAlign()))
	_ = binary.Write(&buf, le, uint16(p.SampleWidth))
	buf.WriteString("data")
	_ = binary.Write(&buf, le, dataSize)

	return buf.Bytes()
}

// EncodeWAVE packs interleaved little-endian PCM into a WAVE file.
func EncodeWAVE(p AudioParameters, pcm []byte) []byte {
	out := make([]byte, 0, waveHeaderSize+len(pcm))
	out = append(out, WAVEHeader(p, uint32(len(pcm)))...)
	return append(out, pcm...)
}

// DecodeWAVE reads the format and the PCM payload of a WAVE file.
func DecodeWAVE(data []byte) (AudioParameters, []byte, error) {
	r, err := wav.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return AudioParameters{}, nil, fmt.Errorf("%w: %v", ErrInvalidWAVE, err)
	}

	file := r.GetFile()
	params := AudioParameters{
		Channels:    int(file.Channels),
		SampleWidth: int(file.SignificantBits),
		SampleRate:  int(file.SampleRate),
		FrameRate:   int(file.SampleRate),
	}
	if params.Channels == 0 || params.SampleWidth == 0 || params.SampleRate == 0 {
		return AudioParameters{}, nil, fmt.Errorf("%w: incomplete fmt chunk", ErrInvalidWAVE)
	}

	var pcm bytes.Buffer
	for {
		sample, err := r.ReadRawSample()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return AudioParameters{}, nil, fmt.Errorf("failed to read wave sample: %w", err)
		}
		pcm.Write(sample)
	}

	return params, pcm.Bytes(), nil
}
