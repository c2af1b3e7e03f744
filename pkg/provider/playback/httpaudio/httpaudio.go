// Package httpaudio implements playback.Sink by downloading synthesized
// speech over HTTP, decoding it, and handing PCM to an [audio.Player].
//
// MP3 and WAV are supported. The clip is downmixed to mono and resampled to
// the player's output rate before playback.
package httpaudio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"

	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/provider/playback"
)

const (
	// DefaultOutputRate is used when no output rate is configured.
	DefaultOutputRate = 48000

	defaultTimeout = 20 * time.Second

	// maxClipBytes caps a downloaded clip; a spoken reply is far smaller.
	maxClipBytes = 32 << 20

	// resampleQuality trades CPU for fidelity; 4 is beep's recommended
	// default for speech.
	resampleQuality = 4

	// streamChunk is the number of stereo samples pulled per Stream call.
	streamChunk = 4096
)

// Ensure Sink implements playback.Sink at compile time.
var _ playback.Sink = (*Sink)(nil)

// Option is a functional option for configuring a Sink.
type Option func(*Sink)

// WithHTTPClient overrides the HTTP client. The default has a 20 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.httpClient = c }
}

// WithOutputRate sets the sample rate clips are resampled to. Default 48000.
func WithOutputRate(rate int) Option {
	return func(s *Sink) { s.outputRate = rate }
}

// Sink fetches clips relative to a base URL and plays them on a player.
type Sink struct {
	baseURL    string
	httpClient *http.Client
	player     audio.Player
	outputRate int
}

// New returns a Sink resolving relative references against baseURL.
func New(baseURL string, player audio.Player, opts ...Option) *Sink {
	s := &Sink{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		player:     player,
		outputRate: DefaultOutputRate,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Play implements playback.Sink.
func (s *Sink) Play(ctx context.Context, ref string) error {
	url, err := s.resolve(ref)
	if err != nil {
		return err
	}

	data, contentType, err := s.fetch(ctx, url)
	if err != nil {
		return err
	}

	pcm, err := s.decode(data, contentType, url)
	if err != nil {
		return err
	}
	slog.Debug("playback: clip decoded",
		"url", url,
		"bytes", len(data),
		"duration", time.Duration(len(pcm)/audio.BytesPerSample)*time.Second/time.Duration(s.outputRate),
	)

	if err := s.player.Play(ctx, pcm, audio.Format{SampleRate: s.outputRate, Channels: 1}); err != nil {
		return fmt.Errorf("httpaudio: play: %w: %w", playback.ErrPlayback, err)
	}
	return nil
}

// resolve turns ref into an absolute URL. Absolute references are used as-is.
func (s *Sink) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("httpaudio: %w: empty reference", playback.ErrPlayback)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if s.baseURL == "" {
		return "", fmt.Errorf("httpaudio: %w: relative reference %q without base URL", playback.ErrPlayback, ref)
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return s.baseURL + ref, nil
}

func (s *Sink) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("httpaudio: create request: %w: %w", playback.ErrPlayback, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("httpaudio: fetch %s: %w: %w", url, playback.ErrPlayback, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("httpaudio: fetch %s: %w: HTTP %d", url, playback.ErrPlayback, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, "", fmt.Errorf("httpaudio: read %s: %w: %w", url, playback.ErrPlayback, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// decode picks a codec, decodes data, and returns mono 16-bit PCM at the
// output rate.
func (s *Sink) decode(data []byte, contentType, url string) ([]byte, error) {
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch codec := detectCodec(data, contentType, url); codec {
	case codecMP3:
		stream, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case codecWAV:
		stream, format, err = wav.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("httpaudio: %w: unsupported audio type %q", playback.ErrPlayback, contentType)
	}
	if err != nil {
		return nil, fmt.Errorf("httpaudio: decode: %w: %w", playback.ErrPlayback, err)
	}
	defer stream.Close()

	var src beep.Streamer = stream
	if int(format.SampleRate) != s.outputRate {
		src = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(s.outputRate), stream)
	}

	pcm := make([]byte, 0, stream.Len()*audio.BytesPerSample)
	buf := make([][2]float64, streamChunk)
	for {
		n, ok := src.Stream(buf)
		for _, smp := range buf[:n] {
			v := toInt16((smp[0] + smp[1]) / 2)
			pcm = append(pcm, byte(v), byte(uint16(v)>>8))
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("httpaudio: decode stream: %w: %w", playback.ErrPlayback, err)
	}
	return pcm, nil
}

// toInt16 converts a [-1, 1] float sample to int16 with clamping.
func toInt16(f float64) int16 {
	f *= 32767
	switch {
	case f > 32767:
		return 32767
	case f < -32768:
		return -32768
	case f >= 0:
		return int16(f + 0.5)
	default:
		return int16(f - 0.5)
	}
}

type codec int

const (
	codecUnknown codec = iota
	codecMP3
	codecWAV
)

// detectCodec uses the Content-Type header, then the URL extension, then
// magic bytes.
func detectCodec(data []byte, contentType, url string) codec {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mediaType) {
	case "audio/mpeg", "audio/mp3":
		return codecMP3
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return codecWAV
	}
	switch strings.ToLower(path.Ext(url)) {
	case ".mp3":
		return codecMP3
	case ".wav":
		return codecWAV
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return codecWAV
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return codecMP3
	}
	return codecUnknown
}
