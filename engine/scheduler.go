package engine

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/mixdown-audio/mixdown"
)

type (
	EventKind uint8

	// Event is one scheduled note edge, timestamped with the engine frame
	// clock (the monotonic count of frames rendered, which unlike the
	// transport position never wraps at the loop).
	Event struct {
		Frame      int64
		Kind       EventKind
		Instrument int
		Pitch      int
		Velocity   byte
	}

	// Scheduler turns patterns into sample-accurate note events ahead of the
	// transport. It keeps a cursor of how far along the play path events have
	// been generated; every block the cursor is advanced so that it stays a
	// look-ahead window ahead of the audio being rendered. Because the cursor
	// only moves forward, every pattern occurrence is scheduled exactly once,
	// and because it walks the same loop the transport wraps on, events keep
	// coming in seamlessly across the wrap.
	//
	// The event queue is a sorted, preallocated array; the render context
	// never allocates. All methods are render-context only except Stats
	// reads.
	Scheduler struct {
		transport *Transport
		patterns  []*mixdown.Pattern // per instrument, nil = silent
		events    []Event            // sorted by eventLess

		originClock  int64   // engine clock frame of the cursor origin
		cursorFrames float64 // frames traveled since origin, scheduled up to
		cursorBeat   float64 // musical beat at the cursor

		pending atomic.Int32
		dropped atomic.Uint64
		purged  atomic.Uint64
	}
)

const (
	EventNoteOff EventKind = iota // off sorts before on at the same frame
	EventNoteOn
)

const (
	// lookAheadFrames is how far past the end of the current block events are
	// generated, ~46 ms. Large enough that a control-side hiccup does not
	// starve the queue, small enough that tempo and pattern edits feel
	// immediate.
	lookAheadFrames = 2048

	// maxEvents bounds the queue. Overflowing events are dropped and
	// counted; memory use stays fixed no matter how dense the patterns are.
	maxEvents = 1024

	// staleFrames: an event this far in the past can only come from a bug
	// upstream. Purged defensively so the queue cannot silt up.
	staleFrames = 5 * mixdown.SampleRate

	// StaleAlertCount is the purge size considered anomalous enough to alert
	// about instead of just counting.
	StaleAlertCount = 64
)

func NewScheduler(transport *Transport, numInstruments int) *Scheduler {
	return &Scheduler{
		transport: transport,
		patterns:  make([]*mixdown.Pattern, numInstruments),
		events:    make([]Event, 0, maxEvents),
	}
}

// SetPattern replaces the pattern of an instrument. The pattern becomes
// render-owned; nil silences the instrument.
func (s *Scheduler) SetPattern(instrument int, p *mixdown.Pattern) {
	if instrument < 0 || instrument >= len(s.patterns) {
		return
	}
	s.patterns[instrument] = p
}

// Reset discards all scheduled events and restarts the cursor at the current
// transport position. Called on start, stop and seek.
func (s *Scheduler) Reset(clock int64) {
	s.events = s.events[:0]
	s.pending.Store(0)
	s.originClock = clock
	s.cursorFrames = 0
	s.cursorBeat = s.transport.Beat()
}

// Retime restarts the cursor like Reset but keeps pending note-offs, so
// notes sounding across a tempo or loop change still end. Rescheduling may
// produce duplicate note-offs for notes in the look-ahead window; releasing
// an already released pitch is a no-op, so that is harmless.
func (s *Scheduler) Retime(clock int64) {
	n := 0
	for _, ev := range s.events {
		if ev.Kind == EventNoteOff {
			s.events[n] = ev
			n++
		}
	}
	s.events = s.events[:n]
	s.pending.Store(int32(n))
	s.originClock = clock
	s.cursorFrames = 0
	s.cursorBeat = s.transport.Beat()
}

// LookAhead advances the cursor so events are generated up to the end of the
// block being rendered plus the look-ahead window. clock is the engine frame
// clock at the start of the block.
func (s *Scheduler) LookAhead(clock int64, blockFrames int) {
	goal := float64(clock-s.originClock+int64(blockFrames)) + lookAheadFrames
	loopStart, loopEnd, loopEnabled := s.transport.Loop()
	for wraps := 0; s.cursorFrames < goal && wraps < 64; wraps++ {
		spb := s.transport.SamplesPerBeat()
		segEnd := s.cursorBeat + (goal-s.cursorFrames)/spb
		wrapped := loopEnabled && s.cursorBeat < loopEnd && segEnd >= loopEnd
		if wrapped {
			segEnd = loopEnd
		}
		s.scanRange(s.cursorBeat, segEnd, spb)
		s.cursorFrames += (segEnd - s.cursorBeat) * spb
		if !wrapped {
			s.cursorBeat = segEnd
			return
		}
		s.cursorBeat = loopStart
	}
}

// scanRange schedules all pattern occurrences with a note-on in the beat
// range [from, to). Patterns repeat from beat zero, so occurrence k of a
// pattern of length L covers [k*L, (k+1)*L).
func (s *Scheduler) scanRange(from, to, spb float64) {
	for idx, pat := range s.patterns {
		if pat == nil || len(pat.Notes) == 0 {
			continue
		}
		for k := math.Floor(from / pat.Length); k*pat.Length < to; k++ {
			base := k * pat.Length
			for _, n := range pat.Notes {
				beat := base + n.Start
				if beat < from || beat >= to {
					continue
				}
				on := s.originClock + int64(math.Round(s.cursorFrames+(beat-s.cursorBeat)*spb))
				dur := int64(math.Round(n.Duration * spb))
				if dur < 1 {
					dur = 1
				}
				s.insert(Event{Frame: on, Kind: EventNoteOn, Instrument: idx, Pitch: n.Pitch, Velocity: byte(n.Velocity)})
				s.insert(Event{Frame: on + dur, Kind: EventNoteOff, Instrument: idx, Pitch: n.Pitch})
			}
		}
	}
}

func (s *Scheduler) insert(ev Event) {
	if len(s.events) == cap(s.events) {
		s.dropped.Add(1)
		return
	}
	i := sort.Search(len(s.events), func(i int) bool { return eventLess(ev, s.events[i]) })
	s.events = append(s.events, Event{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = ev
	s.pending.Store(int32(len(s.events)))
}

// eventLess is the dispatch order: frame, then note-offs before note-ons so
// a voice freed at a frame can be reused at that same frame, then instrument
// and pitch to make same-frame dispatch deterministic.
func eventLess(a, b Event) bool {
	if a.Frame != b.Frame {
		return a.Frame < b.Frame
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Instrument != b.Instrument {
		return a.Instrument < b.Instrument
	}
	return a.Pitch < b.Pitch
}

// NextFrame peeks the frame of the earliest scheduled event.
func (s *Scheduler) NextFrame() (int64, bool) {
	if len(s.events) == 0 {
		return 0, false
	}
	return s.events[0].Frame, true
}

// PopDue pops every event due at or before clock, in dispatch order, calling
// fn for each. fn must not call back into the scheduler.
func (s *Scheduler) PopDue(clock int64, fn func(Event)) {
	n := 0
	for n < len(s.events) && s.events[n].Frame <= clock {
		fn(s.events[n])
		n++
	}
	if n > 0 {
		copy(s.events, s.events[n:])
		s.events = s.events[:len(s.events)-n]
		s.pending.Store(int32(len(s.events)))
	}
}

// PurgeStale drops events that are more than staleFrames in the past and
// returns how many were dropped. In normal operation PopDue consumes events
// long before they can go stale, so a non-zero return indicates a bug
// upstream; the queue is cleaned regardless so its memory stays bounded.
func (s *Scheduler) PurgeStale(clock int64) int {
	n := 0
	for n < len(s.events) && s.events[n].Frame < clock-staleFrames {
		n++
	}
	if n > 0 {
		copy(s.events, s.events[n:])
		s.events = s.events[:len(s.events)-n]
		s.pending.Store(int32(len(s.events)))
		s.purged.Add(uint64(n))
	}
	return n
}

// Pending returns the number of queued events. Safe from any goroutine.
func (s *Scheduler) Pending() int { return int(s.pending.Load()) }

// Dropped returns the total number of events dropped to the queue bound.
func (s *Scheduler) Dropped() uint64 { return s.dropped.Load() }

// Purged returns the total number of stale events purged.
func (s *Scheduler) Purged() uint64 { return s.purged.Load() }
