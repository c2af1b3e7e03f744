// Package portaudio implements [audio.Source] and [audio.Player] on top of the
// PortAudio C library via github.com/gordonklaus/portaudio.
//
// PortAudio must be initialised once per process with [Init] before any
// capture or playback stream is opened, and terminated on shutdown with the
// returned function.
package portaudio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voicekiosk/pkg/audio"
)

// Init initialises the PortAudio library and returns a function that
// terminates it. Call the returned function in a defer from main().
func Init() (terminate func() error, err error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w: %w", audio.ErrDevice, err)
	}
	return func() error {
		if err := portaudio.Terminate(); err != nil {
			return fmt.Errorf("portaudio: terminate: %w", err)
		}
		return nil
	}, nil
}

// Device is a summary of a host audio device.
type Device struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Devices lists every device known to PortAudio.
func Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w: %w", audio.ErrDevice, err)
	}
	out := make([]Device, 0, len(infos))
	for _, d := range infos {
		dev := Device{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			dev.HostAPI = d.HostApi.Name
		}
		out = append(out, dev)
	}
	return out, nil
}

// errDeviceNotFound is wrapped when a configured device name matches nothing.
var errDeviceNotFound = errors.New("device not found")

// findDevice returns the device whose name contains name (case-insensitive)
// and has at least one channel in the requested direction. An empty name
// selects the host default device.
func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(name)
	for _, d := range infos {
		if input && d.MaxInputChannels == 0 {
			continue
		}
		if !input && d.MaxOutputChannels == 0 {
			continue
		}
		if strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errDeviceNotFound, name)
}
