package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
	"github.com/MrWong99/voicekiosk/pkg/provider/playback"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
	"github.com/MrWong99/voicekiosk/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by the Create methods for a name that
// has no factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds one collaborator from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// PlaybackFactory builds a playback sink that plays through player.
type PlaybackFactory func(entry ProviderEntry, player audio.Player) (playback.Sink, error)

// table is the set of factories for one provider kind.
type table[F any] map[string]F

func (t table[F]) find(kind, name string) (F, error) {
	f, ok := t[name]
	if !ok {
		return f, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	return f, nil
}

// Registry resolves the provider names in a [Config] to constructors, one
// namespace per kind. Registering a name twice keeps the later factory. It is
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	vad      table[Factory[vad.Engine]]
	stt      table[Factory[stt.Recognizer]]
	dialogue table[Factory[dialogue.Client]]
	playback table[PlaybackFactory]
	audio    table[Factory[audio.Backend]]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		vad:      table[Factory[vad.Engine]]{},
		stt:      table[Factory[stt.Recognizer]]{},
		dialogue: table[Factory[dialogue.Client]]{},
		playback: table[PlaybackFactory]{},
		audio:    table[Factory[audio.Backend]]{},
	}
}

func (r *Registry) locked(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *Registry) RegisterVAD(name string, f Factory[vad.Engine]) {
	r.locked(func() { r.vad[name] = f })
}

func (r *Registry) RegisterSTT(name string, f Factory[stt.Recognizer]) {
	r.locked(func() { r.stt[name] = f })
}

func (r *Registry) RegisterDialogue(name string, f Factory[dialogue.Client]) {
	r.locked(func() { r.dialogue[name] = f })
}

func (r *Registry) RegisterPlayback(name string, f PlaybackFactory) {
	r.locked(func() { r.playback[name] = f })
}

func (r *Registry) RegisterAudio(name string, f Factory[audio.Backend]) {
	r.locked(func() { r.audio[name] = f })
}

// create runs the factory registered for entry.Name in t.
func create[T any](r *Registry, t table[Factory[T]], kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	f, err := t.find(kind, entry.Name)
	r.mu.RUnlock()
	var zero T
	if err != nil {
		return zero, err
	}
	// A failed factory may return a typed nil that would not compare equal
	// to nil once boxed in T.
	v, err := f(entry)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// CreateVAD builds the VAD engine named by entry. Unknown names yield
// [ErrProviderNotRegistered], as do the other Create methods.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return create(r, r.vad, "vad", entry)
}

func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Recognizer, error) {
	return create(r, r.stt, "stt", entry)
}

func (r *Registry) CreateDialogue(entry ProviderEntry) (dialogue.Client, error) {
	return create(r, r.dialogue, "dialogue", entry)
}

func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Backend, error) {
	return create(r, r.audio, "audio", entry)
}

// CreatePlayback builds the playback sink named by entry on top of player.
func (r *Registry) CreatePlayback(entry ProviderEntry, player audio.Player) (playback.Sink, error) {
	r.mu.RLock()
	f, err := r.playback.find("playback", entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry, player)
}

// Names lists the registered names of one kind ("vad", "stt", "dialogue",
// "playback" or "audio") in sorted order. Unknown kinds give nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "vad":
		return slices.Sorted(maps.Keys(r.vad))
	case "stt":
		return slices.Sorted(maps.Keys(r.stt))
	case "dialogue":
		return slices.Sorted(maps.Keys(r.dialogue))
	case "playback":
		return slices.Sorted(maps.Keys(r.playback))
	case "audio":
		return slices.Sorted(maps.Keys(r.audio))
	}
	return nil
}
