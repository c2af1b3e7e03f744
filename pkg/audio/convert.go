package audio

import (
	"encoding/binary"
	"fmt"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String renders f as e.g. "16000Hz mono".
func (f Format) String() string {
	var layout string
	switch {
	case f.Channels <= 1:
		layout = "mono"
	case f.Channels == 2:
		layout = "stereo"
	default:
		layout = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, layout)
}

// BytesPerFrame is the PCM size of frameMs milliseconds of audio in f.
func (f Format) BytesPerFrame(frameMs int) int {
	return FrameSize(f.SampleRate, frameMs) * max(f.Channels, 1) * BytesPerSample
}

// Int16ToPCM encodes samples as little-endian 16-bit PCM.
func Int16ToPCM(samples []int16) []byte {
	pcm := make([]byte, 0, len(samples)*BytesPerSample)
	for _, s := range samples {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
	}
	return pcm
}

// PCMToInt16 decodes little-endian 16-bit PCM. A trailing odd byte is dropped.
func PCMToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[BytesPerSample*i:]))
	}
	return samples
}

// PCMToFloat32 decodes 16-bit PCM into samples scaled to [-1, 1), the input
// format of most inference runtimes.
func PCMToFloat32(pcm []byte) []float32 {
	const fullScale = 1 << 15
	samples := PCMToInt16(pcm)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / fullScale
	}
	return out
}

// ResampleMono16 converts 16-bit mono PCM from one sample rate to another by
// linear interpolation. Equal or non-positive rates return pcm as is.
func ResampleMono16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate <= 0 || toRate <= 0 || fromRate == toRate || len(pcm) < BytesPerSample {
		return pcm
	}
	in := PCMToInt16(pcm)
	n := int(int64(len(in)) * int64(toRate) / int64(fromRate))
	if n == 0 {
		return nil
	}

	out := make([]int16, n)
	step := float64(fromRate) / float64(toRate)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		next := min(j+1, last)
		w := pos - float64(j)
		out[i] = int16(float64(in[j])*(1-w) + float64(in[next])*w)
	}
	return Int16ToPCM(out)
}
