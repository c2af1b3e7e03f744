package listen

import "github.com/MrWong99/voicekiosk/pkg/audio"

// RollingWindow is a fixed-capacity ring of the most recent classified frames.
// Inserting into a full window evicts the oldest entry. It keeps a running
// count of speech-classified entries so the trigger check is O(1).
//
// RollingWindow is not safe for concurrent use.
type RollingWindow struct {
	frames []audio.AudioFrame
	speech []bool
	head   int // index of the oldest entry
	n      int
	voiced int
}

// NewRollingWindow returns an empty window holding at most capacity entries.
// A capacity below 1 is treated as 1.
func NewRollingWindow(capacity int) *RollingWindow {
	capacity = max(capacity, 1)
	return &RollingWindow{
		frames: make([]audio.AudioFrame, capacity),
		speech: make([]bool, capacity),
	}
}

// Push appends a classified frame, evicting the oldest entry when full.
func (w *RollingWindow) Push(f audio.AudioFrame, isSpeech bool) {
	c := len(w.frames)
	if w.n == c {
		if w.speech[w.head] {
			w.voiced--
		}
		w.frames[w.head] = f
		w.speech[w.head] = isSpeech
		w.head = (w.head + 1) % c
	} else {
		i := (w.head + w.n) % c
		w.frames[i] = f
		w.speech[i] = isSpeech
		w.n++
	}
	if isSpeech {
		w.voiced++
	}
}

// Frames returns the buffered frames, oldest first, in a new slice.
func (w *RollingWindow) Frames() []audio.AudioFrame {
	out := make([]audio.AudioFrame, w.n)
	for i := range w.n {
		out[i] = w.frames[(w.head+i)%len(w.frames)]
	}
	return out
}

// SpeechCount returns the number of buffered entries classified as speech.
func (w *RollingWindow) SpeechCount() int { return w.voiced }

// Len returns the number of buffered entries.
func (w *RollingWindow) Len() int { return w.n }

// Cap returns the window capacity.
func (w *RollingWindow) Cap() int { return len(w.frames) }

// Reset empties the window.
func (w *RollingWindow) Reset() {
	clear(w.frames)
	clear(w.speech)
	w.head, w.n, w.voiced = 0, 0, 0
}
