package audio

const defaultStreamChunkSize = 4096

// StreamRecorder forwards already encoded audio (ogg, webm) as it is read.
type StreamRecorder struct {
	*capture
}

func NewStreamRecorder(caps Capabilities) *StreamRecorder {
	format := caps.StreamFormat
	if format == "" {
		format = FormatOgg
	}
	size := caps.ChunkSize
	if size <= 0 {
		size = defaultStreamChunkSize
	}

	specs := Specs{
		AudioFormat:     format,
		AudioParameters: caps.StreamParameters.withDefaults(),
	}
	return &StreamRecorder{capture: newCapture(caps.Stream, size, specs, caps)}
}
