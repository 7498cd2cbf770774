// Package mixdown contains the data model of the mixdown audio engine: songs,
// patterns, instruments and the audio buffer & device abstractions. The
// real-time machinery lives in the engine, mixer and synth subpackages; this
// package has no engine state and can be used from any goroutine.
package mixdown

import "io"

// SampleRate is the fixed internal sample rate of the engine, in Hz.
const SampleRate = 44100

// AudioBuffer is a buffer of stereo audio samples of the format
// [[left1,right1],[left2,right2],...]
type AudioBuffer [][2]float32

// AudioSource produces stereo audio one block at a time. ReadAudio fills buf
// with up to len(buf) frames and returns the number of frames written. It
// returns io.EOF when no more audio will be produced.
type AudioSource interface {
	ReadAudio(buf AudioBuffer) (int, error)
}

// AudioContext represents the low-level audio drivers. There should be at most
// one AudioContext alive at once.
type AudioContext interface {
	Play(src AudioSource) CloserWaiter
	Close() error
}

// CloserWaiter is the handle to ongoing playback: Close stops it, Wait blocks
// until the source is exhausted or playback is closed.
type CloserWaiter interface {
	Close() error
	Wait()
}

// Source returns an AudioSource that reads from the buffer, for playing back
// already rendered audio.
func (buf AudioBuffer) Source() AudioSource {
	return &bufferSource{buf: buf}
}

type bufferSource struct {
	buf AudioBuffer
	pos int
}

func (s *bufferSource) ReadAudio(dst AudioBuffer) (int, error) {
	if s.pos >= len(s.buf) {
		return 0, io.EOF
	}
	n := copy(dst, s.buf[s.pos:])
	s.pos += n
	return n, nil
}
