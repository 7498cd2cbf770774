package mixdown

import (
	"errors"
	"fmt"
	"math"
)

type (
	// Song is the complete description the engine consumes: tempo, optional
	// loop region, the instruments with their patterns, and the mixer buses.
	// A Song is plain data; Validate should be called before handing it to
	// the engine.
	Song struct {
		BPM         float64   `yaml:"bpm"`
		BeatsPerBar int       `yaml:"beatsperbar,omitempty"`
		Loop        *LoopSpec `yaml:"loop,omitempty"`

		Instruments []Instrument `yaml:"instruments"`
		Patterns    []Pattern    `yaml:"patterns"`
		Buses       []BusDef     `yaml:"buses,omitempty"`
		Master      MasterDef    `yaml:"master,omitempty"`
	}

	// LoopSpec is a loop region, in beats from the start of the song. The
	// region is half-open: [Start, End).
	LoopSpec struct {
		Start float64 `yaml:"start"`
		End   float64 `yaml:"end"`
	}

	// BusDef describes a send/return bus: audio routed to it from channel
	// sends runs through its insert chain before reaching the master.
	BusDef struct {
		Name    string      `yaml:"name"`
		Gain    float64     `yaml:"gain,omitempty"`
		Effects []EffectDef `yaml:"effects,omitempty"`
	}

	// MasterDef describes the master strip.
	MasterDef struct {
		Gain    float64     `yaml:"gain,omitempty"`
		Effects []EffectDef `yaml:"effects,omitempty"`
	}

	// EffectDef describes one insert effect by type name and its initial
	// parameter values. The known types and their parameters are defined by
	// the mixer package.
	EffectDef struct {
		Type   string             `yaml:"type"`
		Params map[string]float64 `yaml:"params,omitempty"`
	}
)

const (
	minBPM = 20
	maxBPM = 999
)

// SamplesPerBeat returns the length of one beat in samples. The value is
// generally not an integer.
func (s *Song) SamplesPerBeat() float64 {
	return SampleRate * 60 / s.BPM
}

// Pattern returns the pattern with the given id, or false if no such pattern
// exists.
func (s *Song) Pattern(id string) (*Pattern, bool) {
	for i := range s.Patterns {
		if s.Patterns[i].ID == id {
			return &s.Patterns[i], true
		}
	}
	return nil, false
}

// LengthBeats returns the length of the song in beats: the longest pattern in
// use, rounded up to full bars. Returns 0 if no instrument plays a pattern.
func (s *Song) LengthBeats() float64 {
	var max float64
	for _, instr := range s.Instruments {
		if instr.PatternID == "" {
			continue
		}
		if p, ok := s.Pattern(instr.PatternID); ok && p.Length > max {
			max = p.Length
		}
	}
	bar := float64(s.beatsPerBar())
	return math.Ceil(max/bar) * bar
}

// LengthFrames returns the length of the song in samples, including an extra
// tail for releases and effect tails to ring out.
func (s *Song) LengthFrames(tailSeconds float64) int {
	return int(math.Ceil(s.LengthBeats()*s.SamplesPerBeat() + tailSeconds*SampleRate))
}

func (s *Song) beatsPerBar() int {
	if s.BeatsPerBar <= 0 {
		return 4
	}
	return s.BeatsPerBar
}

// Validate checks that the song description is coherent: sane tempo and loop
// region, valid instruments and patterns, and that every pattern and bus
// reference resolves. It returns the first error found.
func (s *Song) Validate() error {
	if s.BPM < minBPM || s.BPM > maxBPM {
		return fmt.Errorf("BPM %v out of range [%v, %v]", s.BPM, minBPM, maxBPM)
	}
	if s.BeatsPerBar < 0 {
		return errors.New("beatsperbar cannot be negative")
	}
	if s.Loop != nil {
		if s.Loop.Start < 0 {
			return errors.New("loop start cannot be negative")
		}
		if s.Loop.End <= s.Loop.Start {
			return fmt.Errorf("loop end (%v) must be greater than loop start (%v)", s.Loop.End, s.Loop.Start)
		}
	}
	if len(s.Instruments) == 0 {
		return errors.New("song has no instruments")
	}
	seen := map[string]bool{}
	for i := range s.Patterns {
		p := &s.Patterns[i]
		if seen[p.ID] {
			return fmt.Errorf("duplicate pattern id %q", p.ID)
		}
		seen[p.ID] = true
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pattern %q: %w", p.ID, err)
		}
	}
	busSeen := map[string]bool{}
	for _, b := range s.Buses {
		if b.Name == "" {
			return errors.New("bus with empty name")
		}
		if busSeen[b.Name] {
			return fmt.Errorf("duplicate bus %q", b.Name)
		}
		busSeen[b.Name] = true
	}
	for i := range s.Instruments {
		instr := &s.Instruments[i]
		if err := instr.Validate(); err != nil {
			return fmt.Errorf("instrument %q: %w", instr.Name, err)
		}
		if instr.PatternID != "" {
			if _, ok := s.Pattern(instr.PatternID); !ok {
				return fmt.Errorf("instrument %q: unknown pattern %q", instr.Name, instr.PatternID)
			}
		}
		for _, send := range instr.Sends {
			if !busSeen[send.Bus] {
				return fmt.Errorf("instrument %q: send to unknown bus %q", instr.Name, send.Bus)
			}
		}
	}
	return nil
}
