package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/mixdown-audio/mixdown"
)

type (
	// VoicePool is a fixed-capacity arena of voices for one instrument. All
	// voices and their generators are allocated up front; NoteOn never
	// allocates, it reuses an idle slot or steals a sounding one. Trigger,
	// release and render run in the render context; the Stats counters are
	// atomics so the control side can poll them.
	VoicePool struct {
		voices  []Voice
		env     mixdown.EnvelopeParams
		scratch []float32

		active       atomic.Int32
		stolenTotal  atomic.Uint64
		stolenPerSec atomic.Uint32
		windowCount  uint32
		windowFrames int
	}

	// PoolStats is a snapshot of the pool counters.
	PoolStats struct {
		Active       int
		StolenTotal  uint64
		StolenPerSec uint32
	}
)

// Steal priority weights. The phase gap is larger than the maximum amplitude
// contribution, so a quiet sustaining voice always outlives a loud releasing
// one, and voices still in their attack are taken only as the last resort.
const (
	stealWeightAttack  = 300
	stealWeightSustain = 200
	stealWeightRelease = 100
	stealWeightAmp     = 50
)

func NewVoicePool(capacity int, env mixdown.EnvelopeParams, newGen func() (Generator, error), maxBlock int) (*VoicePool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("voice pool capacity %d must be at least 1", capacity)
	}
	p := &VoicePool{
		voices:  make([]Voice, capacity),
		env:     env,
		scratch: make([]float32, maxBlock),
	}
	for i := range p.voices {
		gen, err := newGen()
		if err != nil {
			return nil, fmt.Errorf("creating generator for voice %d: %w", i, err)
		}
		p.voices[i].gen = gen
	}
	return p, nil
}

func (p *VoicePool) Capacity() int { return len(p.voices) }

// NoteOn triggers a note, stealing a voice if the pool is saturated. A voice
// already sounding the same pitch is retriggered through the fade path so the
// restart is click-free.
func (p *VoicePool) NoteOn(pitch int, velocity float32) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.env.Active() && v.ramp == 0 && v.pitch == pitch && v.env.Phase() != PhaseRelease {
			v.steal(pitch, velocity)
			return
		}
	}
	for i := range p.voices {
		// a fading voice is not a free slot even when its envelope already
		// idled; it still owes its pending retrigger
		if !p.voices[i].env.Active() && p.voices[i].ramp == 0 {
			p.voices[i].start(p.env, pitch, velocity)
			return
		}
	}
	p.stealTarget().steal(pitch, velocity)
	p.stolenTotal.Add(1)
	p.windowCount++
}

// stealTarget picks the voice to sacrifice. Releasing voices go first,
// quietest wins; otherwise the lowest phase-weighted priority loses, with
// ties going to the older voice, then the lower slot.
func (p *VoicePool) stealTarget() *Voice {
	var best *Voice
	for i := range p.voices {
		v := &p.voices[i]
		if v.env.Phase() != PhaseRelease || v.ramp > 0 {
			continue
		}
		if best == nil || v.amplitude() < best.amplitude() ||
			(v.amplitude() == best.amplitude() && v.age > best.age) {
			best = v
		}
	}
	if best != nil {
		return best
	}
	for i := range p.voices {
		v := &p.voices[i]
		if best == nil || stealPriority(v) < stealPriority(best) ||
			(stealPriority(v) == stealPriority(best) && v.age > best.age) {
			best = v
		}
	}
	return best
}

func stealPriority(v *Voice) float32 {
	var w float32
	switch {
	case v.ramp > 0 || v.env.Phase() == PhaseRelease:
		w = stealWeightRelease
	case v.env.Phase() == PhaseAttack:
		w = stealWeightAttack
	default:
		w = stealWeightSustain
	}
	return w + v.amplitude()*stealWeightAmp
}

// NoteOff releases every sounding voice of the pitch. If the pitch is only
// pending behind a steal fade, the release is remembered and applied right
// after the retrigger.
func (p *VoicePool) NoteOff(pitch int) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.ramp > 0 {
			if v.pending && v.pendingPitch == pitch {
				v.pendingOff = true
			}
			continue
		}
		if v.env.Active() && v.pitch == pitch {
			v.env.Release()
		}
	}
}

// ReleaseAll releases every sounding voice.
func (p *VoicePool) ReleaseAll() {
	for i := range p.voices {
		v := &p.voices[i]
		if v.ramp > 0 {
			v.pending = false
			continue
		}
		if v.env.Active() {
			v.env.Release()
		}
	}
}

// KillAll fades every sounding voice out over the steal ramp, dropping any
// pending retriggers.
func (p *VoicePool) KillAll() {
	for i := range p.voices {
		v := &p.voices[i]
		v.pending = false
		if v.env.Active() {
			v.fade()
		}
	}
}

// Render mixes all sounding voices into out (mono, accumulating) and updates
// the published counters.
func (p *VoicePool) Render(out []float32) {
	var count int32
	for i := range p.voices {
		v := &p.voices[i]
		if !v.env.Active() && v.ramp == 0 {
			continue
		}
		v.render(p.env, p.scratch[:len(out)], out)
		if v.env.Active() {
			count++
		}
	}
	p.active.Store(count)
	p.windowFrames += len(out)
	if p.windowFrames >= mixdown.SampleRate {
		p.stolenPerSec.Store(p.windowCount)
		p.windowCount = 0
		p.windowFrames -= mixdown.SampleRate
	}
}

// Stats returns the published counters. Safe to call from any goroutine.
func (p *VoicePool) Stats() PoolStats {
	return PoolStats{
		Active:       int(p.active.Load()),
		StolenTotal:  p.stolenTotal.Load(),
		StolenPerSec: p.stolenPerSec.Load(),
	}
}
