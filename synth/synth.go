// Package synth provides the default voice generators: a subtractive
// synthesis voice (oscillator into a state-variable filter) and a
// pitch-shifting sample playback voice. Both implement engine.Generator.
package synth

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/mixdown-audio/mixdown"
	"github.com/mixdown-audio/mixdown/engine"
)

// NoteFreq converts a MIDI note number to frequency in Hz, 12-tone equal
// temperament with A4 (note 69) at 440 Hz.
func NoteFreq(note int) float32 {
	return 440 * math32.Pow(2, float32(note-69)/12)
}

// NewGenerator is the engine.GeneratorFactory for the built-in voices.
// Sampler instruments must have their sample data loaded before the engine
// is constructed.
func NewGenerator(instr *mixdown.Instrument) (engine.Generator, error) {
	switch instr.Kind {
	case mixdown.KindSynth:
		return newSynthVoice(instr.Synth), nil
	case mixdown.KindSampler:
		if instr.Sampler.Sample == nil {
			return nil, fmt.Errorf("sampler %q has no sample data loaded", instr.Name)
		}
		return newSamplerVoice(instr.Sampler)
	}
	return nil, fmt.Errorf("unknown instrument kind %q", instr.Kind)
}

type synthVoice struct {
	osc  oscillator
	filt svf
}

func newSynthVoice(params *mixdown.SynthParams) *synthVoice {
	v := &synthVoice{}
	if params != nil {
		v.osc.waveform = waveformFromName(params.Waveform)
		v.filt.setup(params.Cutoff, params.Resonance)
	} else {
		v.osc.waveform = waveformSaw
		v.filt.setup(0, 0)
	}
	return v
}

func (v *synthVoice) Trigger(pitch int, velocity float32) {
	v.osc.phase = 0
	v.osc.incr = NoteFreq(pitch) / mixdown.SampleRate
	v.filt.resetState()
}

func (v *synthVoice) Render(dst []float32) int {
	for i := range dst {
		dst[i] = v.filt.process(v.osc.next())
	}
	return len(dst)
}

var errNoSample = errors.New("sample has no audio data")
