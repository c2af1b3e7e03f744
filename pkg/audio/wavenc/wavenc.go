// Package wavenc wraps mono or interleaved 16-bit PCM in a RIFF/WAV container
// for upload to batch transcription services.
package wavenc

import (
	"errors"
	"fmt"
	"io"
	"slices"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/voicekiosk/pkg/audio"
)

// ContentType is the MIME type of the encoded output.
const ContentType = "audio/wav"

// bitDepth of every encoded file.
const bitDepth = 16

// wavFormatPCM is the WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

// Encode returns pcm (16-bit signed little-endian) as a complete WAV file.
func Encode(pcm []byte, format audio.Format) ([]byte, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("wavenc: invalid sample rate %d", format.SampleRate)
	}
	channels := max(format.Channels, 1)

	samples := audio.PCMToInt16(pcm)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	var buf writeSeekerBuffer
	enc := wav.NewEncoder(&buf, format.SampleRate, bitDepth, channels, wavFormatPCM)
	err := enc.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("wavenc: write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wavenc: finalize header: %w", err)
	}
	return buf.Bytes(), nil
}

// writeSeekerBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch chunk sizes on Close.
type writeSeekerBuffer struct {
	b []byte
	i int64
}

func (b *writeSeekerBuffer) Bytes() []byte { return b.b }

func (b *writeSeekerBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end := b.i + int64(len(p))
	if n := end - int64(cap(b.b)); n > 0 {
		b.b = slices.Grow(b.b, int(n))
	}
	if end > int64(len(b.b)) {
		b.b = b.b[:end]
	}
	copy(b.b[b.i:end], p)
	b.i = end
	return len(p), nil
}

func (b *writeSeekerBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.i + offset
	case io.SeekEnd:
		pos = int64(len(b.b)) + offset
	default:
		return 0, errors.New("wavenc: invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("wavenc: negative position")
	}
	b.i = pos
	return pos, nil
}
