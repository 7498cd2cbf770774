package engine

import "github.com/mixdown-audio/mixdown"

// Generator is a pluggable voice sound source. Trigger restarts it at a
// pitch; Render fills dst with the raw (pre-envelope) signal and returns the
// number of samples written. Returning less than len(dst) means the generator
// has finished on its own, e.g. a one-shot sample ran out. Implementations
// must not allocate in Render.
type Generator interface {
	Trigger(pitch int, velocity float32)
	Render(dst []float32) int
}

// stealRampFrames is the fade-out length when a voice is stolen: 5 ms. A
// stolen voice is never cut, it is ramped to silence over this many samples
// and only then retriggered with the pending note.
const stealRampFrames = mixdown.SampleRate * 5 / 1000

// Voice is one slot in a VoicePool. The zero value is an idle voice (minus
// the generator, which the pool fills in).
type Voice struct {
	gen      Generator
	env      Envelope
	pitch    int
	velocity float32
	age      uint64 // frames since last trigger

	// steal fade state; ramp > 0 while fading
	ramp            int
	rampLevel       float32
	rampStep        float32
	pending         bool // trigger pendingPitch when the fade ends
	pendingOff      bool // the pending note was already released while fading
	pendingPitch    int
	pendingVelocity float32
}

func (v *Voice) start(params mixdown.EnvelopeParams, pitch int, velocity float32) {
	v.pitch = pitch
	v.velocity = velocity
	v.age = 0
	v.ramp = 0
	v.rampLevel = 1
	v.pending = false
	v.gen.Trigger(pitch, velocity)
	v.env.Trigger(params)
}

// steal starts the fade-out and remembers the note to trigger when it is
// done. Stealing an already fading voice just replaces its pending note.
func (v *Voice) steal(pitch int, velocity float32) {
	if v.ramp == 0 {
		v.ramp = stealRampFrames
		v.rampStep = v.rampLevel / stealRampFrames
	}
	v.pending = true
	v.pendingOff = false
	v.pendingPitch = pitch
	v.pendingVelocity = velocity
}

// fade starts the fade-out with nothing to follow; the voice goes idle when
// the ramp ends.
func (v *Voice) fade() {
	if v.ramp == 0 {
		v.ramp = stealRampFrames
		v.rampStep = v.rampLevel / stealRampFrames
	}
	v.pending = false
}

func (v *Voice) endRamp(params mixdown.EnvelopeParams) {
	if !v.pending {
		v.ramp = 0
		v.env.Reset()
		return
	}
	off := v.pendingOff
	// the fade ended at silence; the new note must attack from there, not
	// from the old envelope level
	v.env.Reset()
	v.start(params, v.pendingPitch, v.pendingVelocity)
	if off {
		v.env.Release()
	}
}

// amplitude is the current output level of the voice, used for steal
// priority.
func (v *Voice) amplitude() float32 {
	return v.env.Level() * v.velocity * v.rampLevel
}

// render mixes the voice into out. scratch must be at least len(out) long.
// The loop is segmented at the steal ramp end so the pending note can start
// mid-block, sample-accurately.
func (v *Voice) render(params mixdown.EnvelopeParams, scratch, out []float32) {
	for len(out) > 0 {
		if !v.env.Active() {
			// a short release can hit idle before the fade runs out; the
			// pending note fires now instead of waiting out ramp frames that
			// are never rendered
			if v.ramp == 0 {
				return
			}
			v.endRamp(params)
			continue
		}
		n := len(out)
		if v.ramp > 0 && v.ramp < n {
			n = v.ramp
		}
		m := v.gen.Render(scratch[:n])
		for i := 0; i < m; i++ {
			g := v.env.Next() * v.velocity
			if v.ramp > 0 {
				v.rampLevel -= v.rampStep
				if v.rampLevel < 0 {
					v.rampLevel = 0
				}
				g *= v.rampLevel
			}
			out[i] += scratch[i] * g
		}
		v.age += uint64(m)
		out = out[m:]
		if m < n {
			// generator finished; no point fading what is silent
			if v.ramp > 0 {
				v.endRamp(params)
			} else {
				v.env.Reset()
			}
			continue
		}
		if v.ramp > 0 {
			v.ramp -= n
			if v.ramp <= 0 {
				v.endRamp(params)
			}
		}
	}
}
