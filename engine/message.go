package engine

import (
	"github.com/mixdown-audio/mixdown"
	"github.com/mixdown-audio/mixdown/mixer"
)

// Messages sent to the engine through Broker.ToEngine. The engine drains the
// channel at the start of every block, so all of these take effect at block
// boundaries. None of them may carry anything the engine would have to
// allocate or free in the render context; pointers handed over (patterns,
// inserts) become render-owned or stay immutable.
type (
	// StartMsg starts playback from the current transport position.
	StartMsg struct{}

	// StopMsg stops playback, releases all sounding voices and discards
	// scheduled events.
	StopMsg struct{}

	// SeekMsg moves the transport to the given beat. Sounding voices are
	// released and scheduled events discarded; effect tails are flushed so
	// no audio from before the seek rings over.
	SeekMsg struct{ Beat float64 }

	// BPMMsg changes the tempo. The transport keeps its current frame
	// position; scheduled note-ons are re-timed, pending note-offs keep
	// their original frames.
	BPMMsg struct{ BPM float64 }

	// LoopMsg sets or clears the loop region, in beats.
	LoopMsg struct {
		Start, End float64
		Enabled    bool
	}

	// NoteOnMsg triggers a note immediately (live input path). Velocity is
	// MIDI style 0-127; velocity 0 is treated as a note off.
	NoteOnMsg struct {
		Instrument int
		Pitch      int
		Velocity   byte
	}

	// NoteOffMsg releases a live note.
	NoteOffMsg struct {
		Instrument int
		Pitch      int
	}

	// KillVoicesMsg force-fades every sounding voice. Unlike StopMsg it does
	// not touch the transport.
	KillVoicesMsg struct{}

	// SetPatternMsg replaces the pattern an instrument plays. The pattern
	// must not be modified by the sender afterwards.
	SetPatternMsg struct {
		Instrument int
		Pattern    *mixdown.Pattern
	}

	// StripGainMsg sets the fader gain of a mixer strip.
	StripGainMsg struct {
		Strip *mixer.Strip
		Gain  float32
	}

	// StripPanMsg sets the pan of a mixer strip, -1..1.
	StripPanMsg struct {
		Strip *mixer.Strip
		Pan   float32
	}

	// StripMuteMsg sets the mute flag of a mixer strip.
	StripMuteMsg struct {
		Strip *mixer.Strip
		Mute  bool
	}

	// StripSoloMsg sets the solo flag of a mixer strip.
	StripSoloMsg struct {
		Strip *mixer.Strip
		Solo  bool
	}

	// SendLevelMsg sets the level of a channel send.
	SendLevelMsg struct {
		Channel int
		Send    int
		Level   float32
	}

	// InsertParamMsg sets a parameter on an insert effect. The engine applies
	// it in the render context so effect state is never touched from two
	// goroutines.
	InsertParamMsg struct {
		Insert *mixer.Insert
		Name   string
		Value  float64
	}
)
