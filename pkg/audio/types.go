package audio

import "time"

// BytesPerSample is fixed at 2: every stream in the kiosk is 16-bit signed
// little-endian PCM.
const BytesPerSample = 2

// AudioFrame represents a single fixed-duration block of audio flowing through
// the listening pipeline. Frames are produced by a [Source] on every device
// tick, classified by VAD, and either discarded or collected into an
// [Utterance]. A frame must not be modified after it has been produced.
type AudioFrame struct {
	// PCM audio data (16-bit signed, little-endian).
	Data []byte

	// SampleRate in Hz (e.g., 48000 for the default capture device).
	SampleRate int

	// Channels: always 1 for microphone capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of samples per channel contained in the frame.
func (f AudioFrame) Samples() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(f.Data) / (BytesPerSample * ch)
}

// Duration returns the playback length of the frame. Returns 0 when the
// sample rate is unknown.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// Utterance is an ordered sequence of frames covering one detected speech
// segment, from begin-of-speech to end-of-speech. It is owned by the segmenter
// until handed to a recognizer.
type Utterance struct {
	// Frames holds the captured frames in arrival order.
	Frames []AudioFrame

	// SampleRate of every frame in the utterance.
	SampleRate int
}

// Len returns the number of frames in the utterance.
func (u Utterance) Len() int { return len(u.Frames) }

// Duration returns the summed duration of all frames.
func (u Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

// PCM concatenates the frame payloads into a single mono PCM buffer.
func (u Utterance) PCM() []byte {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Data...)
	}
	return out
}

// FrameSize returns the number of samples in a frame of frameMs milliseconds
// at sampleRate. 48 kHz × 30 ms = 1440 samples.
func FrameSize(sampleRate, frameMs int) int {
	return sampleRate * frameMs / 1000
}
