package engine

import "github.com/mixdown-audio/mixdown"

type (
	EnvelopePhase uint8

	// Envelope is a linear-segment amplitude envelope. Step sizes are
	// computed once on Trigger and Release, so the per-sample work is a
	// single add and compare. The decay towards the sustain level runs
	// inside PhaseSustain: the phase tells whether the voice still holds the
	// note, not which slope it is on.
	Envelope struct {
		phase   EnvelopePhase
		level   float32
		attack  float32 // level increment per sample
		decay   float32 // level decrement per sample, towards sustain
		sustain float32
		release float32 // level decrement per sample, set on Release
		relTime float64 // seconds, stored so Release can scale from the current level
	}
)

const (
	PhaseIdle EnvelopePhase = iota
	PhaseAttack
	PhaseSustain
	PhaseRelease
)

// minSegment is the shortest allowed envelope segment in seconds. It keeps
// even a "zero attack" from jumping to full level inside a single sample,
// which would click.
const minSegment = 0.002

// Trigger restarts the envelope with the given constants. The level ramps up
// from wherever it currently is, so retriggering a sounding voice is
// click-free.
func (e *Envelope) Trigger(p mixdown.EnvelopeParams) {
	e.attack = float32(1 / (segment(p.Attack) * mixdown.SampleRate))
	e.sustain = float32(p.Sustain)
	e.decay = float32((1 - p.Sustain) / (segment(p.Decay) * mixdown.SampleRate))
	e.relTime = segment(p.Release)
	e.phase = PhaseAttack
}

// Release starts the release slope from the current level.
func (e *Envelope) Release() {
	if e.phase == PhaseIdle || e.phase == PhaseRelease {
		return
	}
	e.release = e.level / float32(e.relTime*mixdown.SampleRate)
	e.phase = PhaseRelease
}

// Next advances the envelope one sample and returns the new level.
func (e *Envelope) Next() float32 {
	switch e.phase {
	case PhaseAttack:
		e.level += e.attack
		if e.level >= 1 {
			e.level = 1
			e.phase = PhaseSustain
		}
	case PhaseSustain:
		if e.level > e.sustain {
			e.level -= e.decay
			if e.level < e.sustain {
				e.level = e.sustain
			}
		}
	case PhaseRelease:
		e.level -= e.release
		if e.level <= 0 {
			e.level = 0
			e.phase = PhaseIdle
		}
	}
	return e.level
}

func (e *Envelope) Level() float32       { return e.level }
func (e *Envelope) Phase() EnvelopePhase { return e.phase }
func (e *Envelope) Active() bool         { return e.phase != PhaseIdle }

// Reset cuts the envelope to silence immediately. Only for voices that are
// already inaudible; audible voices should Release or be ramped.
func (e *Envelope) Reset() {
	e.level = 0
	e.phase = PhaseIdle
}

func segment(seconds float64) float64 {
	if seconds < minSegment {
		return minSegment
	}
	return seconds
}
