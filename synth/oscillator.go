package synth

import (
	"github.com/chewxy/math32"

	"github.com/mixdown-audio/mixdown"
)

type waveform uint8

const (
	waveformSaw waveform = iota
	waveformSquare
	waveformSine
	waveformTriangle
)

func waveformFromName(name string) waveform {
	switch name {
	case "square":
		return waveformSquare
	case "sine":
		return waveformSine
	case "triangle":
		return waveformTriangle
	default:
		return waveformSaw
	}
}

// oscillator is a naive (non-bandlimited) oscillator; phase runs 0..1.
type oscillator struct {
	waveform waveform
	phase    float32
	incr     float32
}

func (o *oscillator) next() float32 {
	var out float32
	switch o.waveform {
	case waveformSquare:
		if o.phase < 0.5 {
			out = 1
		} else {
			out = -1
		}
	case waveformSine:
		out = math32.Sin(2 * math32.Pi * o.phase)
	case waveformTriangle:
		if o.phase < 0.5 {
			out = 4*o.phase - 1
		} else {
			out = 3 - 4*o.phase
		}
	default: // saw
		out = 2*o.phase - 1
	}
	o.phase += o.incr
	if o.phase >= 1 {
		o.phase -= 1
	}
	return out
}

// svf is a mono Chamberlin state-variable filter, used as the lowpass of the
// synthesis voice. Cutoff 0 (unset) leaves the signal through unfiltered.
type svf struct {
	f, q      float32
	low, band float32
	enabled   bool
}

func (s *svf) setup(cutoff, resonance float64) {
	if cutoff <= 0 {
		s.enabled = false
		return
	}
	if cutoff < 20 {
		cutoff = 20
	}
	if cutoff > 8000 {
		cutoff = 8000
	}
	if resonance < 0.5 {
		resonance = 0.5
	}
	s.f = 2 * math32.Sin(math32.Pi*float32(cutoff)/mixdown.SampleRate)
	s.q = 1 / float32(resonance)
	s.enabled = true
}

func (s *svf) resetState() {
	s.low, s.band = 0, 0
}

func (s *svf) process(x float32) float32 {
	if !s.enabled {
		return x
	}
	s.low += s.f * s.band
	high := x - s.low - s.q*s.band
	s.band += s.f * high
	return s.low
}
