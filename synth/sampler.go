package synth

import (
	"math"

	"github.com/mixdown-audio/mixdown"
)

// samplerVoice plays back sample data pitch-shifted by varying the read
// speed, with 4-point Hermite interpolation between samples. With a sustain
// loop configured the voice plays the loop region until the envelope
// silences it; without one it is a one-shot and reports itself finished when
// the data runs out.
type samplerVoice struct {
	data      []float32
	baseStep  float64 // read increment at the root pitch
	root      int
	loop      bool
	loopStart int
	loopEnd   int

	pos    float64
	step   float64
	active bool
}

func newSamplerVoice(params *mixdown.SamplerParams) (*samplerVoice, error) {
	data := params.Sample.Mono()
	if len(data) == 0 {
		return nil, errNoSample
	}
	v := &samplerVoice{
		data:     data,
		baseStep: float64(params.Sample.SampleRate) / mixdown.SampleRate * params.SpeedOrDefault(),
		root:     params.RootOrDefault(),
	}
	if params.Loop {
		start, end := params.LoopStart, params.LoopEnd
		if end <= 0 || end > len(data) {
			end = len(data)
		}
		if start < 0 || start >= end {
			start = 0
		}
		v.loop = true
		v.loopStart, v.loopEnd = start, end
	}
	return v, nil
}

func (v *samplerVoice) Trigger(pitch int, velocity float32) {
	v.pos = 0
	v.step = v.baseStep * float64(NoteFreq(pitch)/NoteFreq(v.root))
	v.active = true
}

func (v *samplerVoice) Render(dst []float32) int {
	if !v.active {
		return 0
	}
	for i := range dst {
		if v.loop && v.pos >= float64(v.loopEnd) {
			v.pos = float64(v.loopStart) + math.Mod(v.pos-float64(v.loopEnd), float64(v.loopEnd-v.loopStart))
		}
		if v.pos >= float64(len(v.data)) {
			v.active = false
			return i
		}
		dst[i] = v.hermite(v.pos)
		v.pos += v.step
	}
	return len(dst)
}

// hermite reads the sample at a fractional position with 4-point, 3rd-order
// Hermite interpolation; positions at the edges clamp the outer taps.
func (v *samplerVoice) hermite(pos float64) float32 {
	i := int(pos)
	frac := float32(pos - float64(i))
	xm1 := v.at(i - 1)
	x0 := v.at(i)
	x1 := v.at(i + 1)
	x2 := v.at(i + 2)
	c := (x1 - xm1) * 0.5
	d := x0 - x1
	w := c + d
	a := w + d + (x2-x0)*0.5
	b := w + a
	return ((a*frac-b)*frac+c)*frac + x0
}

func (v *samplerVoice) at(i int) float32 {
	if i < 0 {
		i = 0
	}
	if i >= len(v.data) {
		i = len(v.data) - 1
	}
	return v.data[i]
}
