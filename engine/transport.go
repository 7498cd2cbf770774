package engine

import (
	"math"

	"github.com/mixdown-audio/mixdown"
)

type (
	// Transport is the musical clock of the engine. The position is kept in
	// frames as a float64 so loop wraps with a fractional number of samples
	// per beat do not accumulate drift; beats, bars and everything else are
	// derived from it on demand. All methods are render-context only.
	Transport struct {
		bpm         float64
		beatsPerBar int
		playing     bool
		frame       float64 // position in frames from song start

		loopStart   float64 // beats
		loopEnd     float64 // beats
		loopEnabled bool
	}

	// Position is a transport position split into bar, beat in bar and the
	// fractional part of the beat, for display purposes.
	Position struct {
		Bar  int
		Beat int
		Frac float64
	}
)

func NewTransport(bpm float64, beatsPerBar int) *Transport {
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	return &Transport{bpm: bpm, beatsPerBar: beatsPerBar}
}

// SamplesPerBeat returns the length of one beat in frames at the current
// tempo. Generally not an integer.
func (t *Transport) SamplesPerBeat() float64 {
	return mixdown.SampleRate * 60 / t.bpm
}

func (t *Transport) BPM() float64   { return t.bpm }
func (t *Transport) Playing() bool  { return t.playing }
func (t *Transport) Beat() float64  { return t.frame / t.SamplesPerBeat() }
func (t *Transport) Frame() float64 { return t.frame }

// SetBPM changes the tempo, keeping the frame position. The musical position
// (beat) therefore changes; callers that care should re-derive it.
func (t *Transport) SetBPM(bpm float64) {
	t.bpm = math.Min(math.Max(bpm, 20), 999)
}

func (t *Transport) Play() { t.playing = true }
func (t *Transport) Stop() { t.playing = false }

// Seek moves the transport to the given beat at the current tempo.
func (t *Transport) Seek(beat float64) {
	if beat < 0 {
		beat = 0
	}
	t.frame = beat * t.SamplesPerBeat()
}

// SetLoop sets the loop region in beats. An empty or inverted region disables
// the loop.
func (t *Transport) SetLoop(start, end float64, enabled bool) {
	if end <= start {
		enabled = false
	}
	t.loopStart, t.loopEnd, t.loopEnabled = start, end, enabled
}

// Loop returns the loop region in beats and whether looping is enabled.
func (t *Transport) Loop() (start, end float64, enabled bool) {
	return t.loopStart, t.loopEnd, t.loopEnabled
}

// Advance moves the transport forward by the given number of frames, wrapping
// at the loop end. The wrap keeps the fractional overshoot, so a loop whose
// length is not an integer number of frames stays phase-exact no matter how
// many times it wraps. Returns true if a wrap happened.
func (t *Transport) Advance(frames int) bool {
	if !t.playing {
		return false
	}
	t.frame += float64(frames)
	if !t.loopEnabled {
		return false
	}
	spb := t.SamplesPerBeat()
	start, end := t.loopStart*spb, t.loopEnd*spb
	if t.frame < end {
		return false
	}
	t.frame = start + math.Mod(t.frame-end, end-start)
	return true
}

// Position derives the bar/beat display position.
func (t *Transport) Position() Position {
	beat := t.Beat()
	whole := math.Floor(beat)
	return Position{
		Bar:  int(whole) / t.beatsPerBar,
		Beat: int(whole) % t.beatsPerBar,
		Frac: beat - whole,
	}
}
