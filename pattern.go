package mixdown

import (
	"fmt"
	"sort"
)

type (
	// Pattern is a loop of notes for one instrument. Length is in beats; a
	// pattern repeats back to back from the start of the song, so a note at
	// Start s sounds at beats s, s+Length, s+2*Length and so on.
	Pattern struct {
		ID     string  `yaml:"id"`
		Length float64 `yaml:"length"`
		Notes  []Note  `yaml:"notes"`
	}

	// Note is one note in a pattern. Pitch is a MIDI note number (69 = A4 =
	// 440 Hz) and Velocity runs 0-127, MIDI style. Start and Duration are in
	// beats from the pattern start.
	Note struct {
		Pitch    int     `yaml:"pitch"`
		Velocity int     `yaml:"velocity"`
		Start    float64 `yaml:"start"`
		Duration float64 `yaml:"duration"`
	}
)

// Validate checks the pattern for out-of-range pitches, velocities and note
// times.
func (p *Pattern) Validate() error {
	if p.Length <= 0 {
		return fmt.Errorf("length %v must be positive", p.Length)
	}
	for i, n := range p.Notes {
		if n.Pitch < 0 || n.Pitch > 127 {
			return fmt.Errorf("note %d: pitch %d out of range [0, 127]", i, n.Pitch)
		}
		if n.Velocity < 0 || n.Velocity > 127 {
			return fmt.Errorf("note %d: velocity %d out of range [0, 127]", i, n.Velocity)
		}
		if n.Start < 0 || n.Start >= p.Length {
			return fmt.Errorf("note %d: start %v outside pattern [0, %v)", i, n.Start, p.Length)
		}
		if n.Duration <= 0 {
			return fmt.Errorf("note %d: duration %v must be positive", i, n.Duration)
		}
	}
	return nil
}

// Sorted returns a copy of the pattern with the notes ordered by start time,
// then pitch. The engine assumes this order when scheduling.
func (p *Pattern) Sorted() Pattern {
	ret := *p
	ret.Notes = make([]Note, len(p.Notes))
	copy(ret.Notes, p.Notes)
	sort.SliceStable(ret.Notes, func(i, j int) bool {
		if ret.Notes[i].Start != ret.Notes[j].Start {
			return ret.Notes[i].Start < ret.Notes[j].Start
		}
		return ret.Notes[i].Pitch < ret.Notes[j].Pitch
	})
	return ret
}
