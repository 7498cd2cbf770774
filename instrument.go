package mixdown

import (
	"errors"
	"fmt"
)

type (
	// Instrument describes one sound source and its channel strip: the voice
	// generator kind with its parameters, the polyphony limit, the envelope,
	// and the mix settings (gain, pan, mute/solo, sends, insert effects).
	Instrument struct {
		Name      string `yaml:"name"`
		Kind      string `yaml:"kind"` // "synth" or "sampler"
		PatternID string `yaml:"pattern,omitempty"`

		MaxPolyphony int            `yaml:"polyphony"`
		Envelope     EnvelopeParams `yaml:"envelope"`
		Synth        *SynthParams   `yaml:"synth,omitempty"`
		Sampler      *SamplerParams `yaml:"sampler,omitempty"`

		Gain    float64     `yaml:"gain,omitempty"` // linear, 0 means default 1.0
		Pan     float64     `yaml:"pan,omitempty"`  // -1 (left) .. 1 (right)
		Mute    bool        `yaml:"mute,omitempty"`
		Solo    bool        `yaml:"solo,omitempty"`
		Sends   []SendDef   `yaml:"sends,omitempty"`
		Effects []EffectDef `yaml:"effects,omitempty"`
	}

	// EnvelopeParams are the per-instrument amplitude envelope constants.
	// Attack, Decay and Release are in seconds, Sustain is a level 0..1.
	EnvelopeParams struct {
		Attack  float64 `yaml:"attack"`
		Decay   float64 `yaml:"decay"`
		Sustain float64 `yaml:"sustain"`
		Release float64 `yaml:"release"`
	}

	// SynthParams configures the subtractive synthesis voice: oscillator
	// waveform and the filter it runs through.
	SynthParams struct {
		Waveform  string  `yaml:"waveform"` // "saw", "square", "sine", "triangle"
		Cutoff    float64 `yaml:"cutoff"`   // Hz
		Resonance float64 `yaml:"resonance"`
	}

	// SamplerParams configures the sample playback voice. Root is the MIDI
	// pitch at which the sample plays at its recorded speed. LoopStart and
	// LoopEnd are sample indices of an optional sustain loop.
	SamplerParams struct {
		File      string  `yaml:"file"`
		Root      int     `yaml:"root,omitempty"` // 0 means default 60 (C4)
		Speed     float64 `yaml:"speed,omitempty"`
		Loop      bool    `yaml:"loop,omitempty"`
		LoopStart int     `yaml:"loopstart,omitempty"`
		LoopEnd   int     `yaml:"loopend,omitempty"`

		// Sample is the loaded sample data; filled by the loader, not
		// serialized with the song.
		Sample *SampleData `yaml:"-"`
	}

	// SampleData is decoded sample audio. R is nil for mono samples.
	SampleData struct {
		L          []float32
		R          []float32
		SampleRate int
	}

	// SendDef routes a channel post-fader to a bus at the given level.
	SendDef struct {
		Bus   string  `yaml:"bus"`
		Level float64 `yaml:"level"`
	}
)

const (
	KindSynth   = "synth"
	KindSampler = "sampler"
)

// Validate checks the instrument descriptor. Zero polyphony is an error: an
// instrument that can never sound indicates a broken song description.
func (instr *Instrument) Validate() error {
	switch instr.Kind {
	case KindSynth:
		if instr.Sampler != nil {
			return errors.New("synth instrument with sampler params")
		}
	case KindSampler:
		if instr.Sampler == nil {
			return errors.New("sampler instrument without sampler params")
		}
		if instr.Sampler.Speed < 0 {
			return fmt.Errorf("sampler speed %v cannot be negative", instr.Sampler.Speed)
		}
	default:
		return fmt.Errorf("unknown instrument kind %q", instr.Kind)
	}
	if instr.MaxPolyphony < 1 {
		return fmt.Errorf("polyphony %d must be at least 1", instr.MaxPolyphony)
	}
	if err := instr.Envelope.Validate(); err != nil {
		return fmt.Errorf("envelope: %w", err)
	}
	if instr.Pan < -1 || instr.Pan > 1 {
		return fmt.Errorf("pan %v out of range [-1, 1]", instr.Pan)
	}
	if instr.Gain < 0 {
		return fmt.Errorf("gain %v cannot be negative", instr.Gain)
	}
	for _, send := range instr.Sends {
		if send.Level < 0 {
			return fmt.Errorf("send to %q: level %v cannot be negative", send.Bus, send.Level)
		}
	}
	return nil
}

// Validate checks the envelope constants for negative times and an
// out-of-range sustain level.
func (e *EnvelopeParams) Validate() error {
	if e.Attack < 0 || e.Decay < 0 || e.Release < 0 {
		return errors.New("envelope times cannot be negative")
	}
	if e.Sustain < 0 || e.Sustain > 1 {
		return fmt.Errorf("sustain %v out of range [0, 1]", e.Sustain)
	}
	return nil
}

// GainOrDefault returns the configured channel gain, defaulting to unity.
func (instr *Instrument) GainOrDefault() float64 {
	if instr.Gain == 0 {
		return 1
	}
	return instr.Gain
}

// RootOrDefault returns the sampler root pitch, defaulting to middle C.
func (p *SamplerParams) RootOrDefault() int {
	if p.Root == 0 {
		return 60
	}
	return p.Root
}

// SpeedOrDefault returns the sampler speed multiplier, defaulting to 1.
func (p *SamplerParams) SpeedOrDefault() float64 {
	if p.Speed == 0 {
		return 1
	}
	return p.Speed
}

// Mono returns the sample reduced to a single channel, mixing stereo data
// equally. The slice is newly allocated for stereo data and shared for mono.
func (d *SampleData) Mono() []float32 {
	if d.R == nil {
		return d.L
	}
	ret := make([]float32, len(d.L))
	for i := range ret {
		ret[i] = (d.L[i] + d.R[i]) / 2
	}
	return ret
}
