package engine

import (
	"sync"
	"time"

	"github.com/mixdown-audio/mixdown"
)

type (
	// Broker is the centralized messaging hub between the control side (UI,
	// console, MIDI input) and the audio engine. It is many-to-one in both
	// directions, implemented with one buffered channel per recipient. The
	// engine drains ToEngine at the start of every block and never blocks on
	// ToControl; control-side senders should use TrySend so a stalled
	// recipient only drops messages instead of stalling audio. Additionally,
	// the broker has a sync.Pool of *mixdown.AudioBuffer so rendered audio
	// can be passed around without allocating a new buffer every time.
	Broker struct {
		ToEngine  chan any // messages defined in message.go
		ToControl chan MsgToControl

		bufferPool sync.Pool
	}

	// MsgToControl is a message from the engine to the control side. The
	// frequently sent fields are not boxed to avoid allocations; rarely sent
	// messages travel in Data (casting pointer types to any is cheap).
	MsgToControl struct {
		HasPosition bool
		Beat        float64
		Playing     bool

		Data any // e.g. Alert, *mixdown.AudioBuffer
	}

	// Alert is a diagnostic raised by the engine: an insert fault, dropped
	// events, or an anomalous stale purge. Name identifies the alert source
	// so the control side can deduplicate repeats.
	Alert struct {
		Name     string
		Message  string
		Priority AlertPriority
	}

	AlertPriority int
)

const (
	AlertInfo AlertPriority = iota
	AlertWarning
	AlertError
)

func NewBroker() *Broker {
	return &Broker{
		ToEngine:   make(chan any, 1024),
		ToControl:  make(chan MsgToControl, 1024),
		bufferPool: sync.Pool{New: func() any { return &mixdown.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an audio buffer from the buffer pool. The buffer is
// guaranteed to be empty. After use it should be returned to the pool with
// PutAudioBuffer.
func (b *Broker) GetAudioBuffer() *mixdown.AudioBuffer {
	return b.bufferPool.Get().(*mixdown.AudioBuffer)
}

// PutAudioBuffer returns an audio buffer to the buffer pool. If the buffer is
// not empty, its length is reset (but capacity kept) before pooling it.
func (b *Broker) PutAudioBuffer(buf *mixdown.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Returns true if the value was
// sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received from a channel, or times
// out after t. ok is false if the timeout occurred or the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
