// Package engine implements the real-time core: the transport clock, the
// look-ahead event scheduler, the per-instrument voice pools and the render
// loop that drives them into the mixer graph. One goroutine (the audio
// callback, or an offline render loop) owns all engine state; everything
// else talks to it through the Broker.
package engine

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/mixdown-audio/mixdown"
	"github.com/mixdown-audio/mixdown/mixer"
)

// maxBlockFrames caps the internal block size. Larger reads from the audio
// backend are processed in chunks of at most this many frames.
const maxBlockFrames = 2048

type (
	// GeneratorFactory builds one voice generator for an instrument. It is
	// called capacity times per instrument at engine construction, so
	// generators can allocate freely here; Render later cannot.
	GeneratorFactory func(instr *mixdown.Instrument) (Generator, error)

	// Engine is the composition root. Construct it with New, hand it to an
	// mixdown.AudioContext (it is an AudioSource) or drive it with Play for
	// offline rendering, and control it by sending messages to the broker.
	Engine struct {
		broker    *Broker
		transport *Transport
		sched     *Scheduler
		pools     []*VoicePool
		graph     *mixer.Graph

		clock int64 // frames rendered since start; never wraps

		clockPub    atomic.Int64
		beatBits    atomic.Uint64
		bpmBits     atomic.Uint64
		playingFlag atomic.Bool
		renderTime  atomic.Int64
		lastDropped uint64
		badInstr    bool // bad-instrument alert already raised
	}

	// Stats is a pull-style snapshot of the engine counters, readable from
	// any goroutine without disturbing the render.
	Stats struct {
		Playing       bool
		Beat          float64
		BPM           float64
		Clock         int64
		RenderTime    time.Duration
		EventsPending int
		EventsDropped uint64
		EventsPurged  uint64
		Pools         []PoolStats
	}
)

// New validates the song and builds the engine: transport, scheduler, one
// voice pool per instrument and the mixer graph, everything preallocated.
// Errors here are configuration errors; after New succeeds, rendering
// degrades instead of failing.
func New(song *mixdown.Song, broker *Broker, factory GeneratorFactory) (*Engine, error) {
	if err := song.Validate(); err != nil {
		return nil, fmt.Errorf("invalid song: %w", err)
	}
	transport := NewTransport(song.BPM, song.BeatsPerBar)
	if song.Loop != nil {
		transport.SetLoop(song.Loop.Start, song.Loop.End, true)
	}
	graph, err := mixer.NewGraph(song, maxBlockFrames)
	if err != nil {
		return nil, fmt.Errorf("building mixer graph: %w", err)
	}
	e := &Engine{
		broker:    broker,
		transport: transport,
		sched:     NewScheduler(transport, len(song.Instruments)),
		graph:     graph,
	}
	graph.OnFault = func(strip *mixer.Strip, ins *mixer.Insert, err error) {
		TrySend(broker.ToControl, MsgToControl{Data: Alert{
			Name:     "InsertFault",
			Message:  strip.Name() + "/" + ins.Type() + ": " + err.Error(),
			Priority: AlertError,
		}})
	}
	for i := range song.Instruments {
		instr := &song.Instruments[i]
		pool, err := NewVoicePool(instr.MaxPolyphony, instr.Envelope, func() (Generator, error) {
			return factory(instr)
		}, maxBlockFrames)
		if err != nil {
			return nil, fmt.Errorf("instrument %q: %w", instr.Name, err)
		}
		e.pools = append(e.pools, pool)
		if instr.PatternID != "" {
			p, _ := song.Pattern(instr.PatternID)
			sorted := p.Sorted()
			e.sched.SetPattern(i, &sorted)
		}
	}
	e.bpmBits.Store(math.Float64bits(transport.BPM()))
	return e, nil
}

func (e *Engine) Broker() *Broker     { return e.broker }
func (e *Engine) Graph() *mixer.Graph { return e.graph }

// ReadAudio renders the next len(buf) frames; it implements
// mixdown.AudioSource so the engine can be handed straight to an audio
// backend. A panic anywhere in the render is converted to an error so the
// backend can shut down cleanly instead of crashing the process.
func (e *Engine) ReadAudio(buf mixdown.AudioBuffer) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panicked: %v", p)
		}
	}()
	for len(buf) > 0 {
		block := len(buf)
		if block > maxBlockFrames {
			block = maxBlockFrames
		}
		e.process(buf[:block])
		buf = buf[block:]
		n += block
	}
	return n, nil
}

// process renders one block: drain control messages, advance the scheduler,
// render voices in segments split at event frames so triggers are
// sample-accurate, then run the mixer graph.
func (e *Engine) process(buf mixdown.AudioBuffer) {
	start := time.Now()
	e.processMessages()
	frames := len(buf)
	e.graph.BeginBlock(frames)
	if purged := e.sched.PurgeStale(e.clock); purged > 0 {
		prio := AlertInfo
		if purged > StaleAlertCount {
			prio = AlertWarning
		}
		TrySend(e.broker.ToControl, MsgToControl{Data: Alert{
			Name: "StaleEvents", Message: "stale events purged from the queue", Priority: prio,
		}})
	}
	playing := e.transport.Playing()
	if playing {
		e.sched.LookAhead(e.clock, frames)
		if dropped := e.sched.Dropped(); dropped != e.lastDropped {
			e.lastDropped = dropped
			TrySend(e.broker.ToControl, MsgToControl{Data: Alert{
				Name: "EventOverflow", Message: "event queue full, events dropped", Priority: AlertWarning,
			}})
		}
	}
	offset := 0
	for offset < frames {
		if playing {
			e.sched.PopDue(e.clock+int64(offset), e.dispatch)
		}
		seg := frames - offset
		if playing {
			if next, ok := e.sched.NextFrame(); ok {
				if until := int(next - e.clock); until < frames && until-offset < seg {
					seg = until - offset
				}
			}
		}
		if seg < 1 {
			seg = 1
		}
		for i, pool := range e.pools {
			pool.Render(e.graph.Input(i)[offset : offset+seg])
		}
		offset += seg
	}
	e.graph.Process(buf)
	// ship a copy of the block to the control side for scopes and meters; the
	// buffer comes back through PutAudioBuffer
	scope := e.broker.GetAudioBuffer()
	*scope = append(*scope, buf...)
	if !TrySend(e.broker.ToControl, MsgToControl{Data: scope}) {
		e.broker.PutAudioBuffer(scope)
	}
	e.transport.Advance(frames)
	e.clock += int64(frames)
	e.clockPub.Store(e.clock)
	beat := e.transport.Beat()
	e.beatBits.Store(math.Float64bits(beat))
	e.playingFlag.Store(e.transport.Playing())
	TrySend(e.broker.ToControl, MsgToControl{HasPosition: true, Beat: beat, Playing: e.transport.Playing()})
	e.renderTime.Store(int64(time.Since(start)))
}

func (e *Engine) dispatch(ev Event) {
	if ev.Instrument < 0 || ev.Instrument >= len(e.pools) {
		e.alertBadInstrument()
		return
	}
	switch ev.Kind {
	case EventNoteOn:
		e.pools[ev.Instrument].NoteOn(ev.Pitch, float32(ev.Velocity)/127)
	case EventNoteOff:
		e.pools[ev.Instrument].NoteOff(ev.Pitch)
	}
}

// processMessages handles all pending control messages. Called at the start
// of every block, so every message takes effect at a block boundary.
func (e *Engine) processMessages() {
loop:
	for {
		select {
		case msg := <-e.broker.ToEngine:
			e.handleMessage(msg)
		default:
			break loop
		}
	}
}

func (e *Engine) handleMessage(msg any) {
	switch m := msg.(type) {
	case StartMsg:
		e.transport.Play()
		e.sched.Reset(e.clock)
	case StopMsg:
		e.transport.Stop()
		e.releaseAll()
		e.sched.Reset(e.clock)
	case SeekMsg:
		e.transport.Seek(m.Beat)
		e.releaseAll()
		e.graph.FlushTails()
		e.sched.Reset(e.clock)
	case BPMMsg:
		e.transport.SetBPM(m.BPM)
		e.bpmBits.Store(math.Float64bits(e.transport.BPM()))
		e.sched.Retime(e.clock)
	case LoopMsg:
		e.transport.SetLoop(m.Start, m.End, m.Enabled)
		e.sched.Retime(e.clock)
	case NoteOnMsg:
		if m.Instrument < 0 || m.Instrument >= len(e.pools) {
			e.alertBadInstrument()
			return
		}
		if m.Velocity == 0 {
			e.pools[m.Instrument].NoteOff(m.Pitch)
			return
		}
		e.pools[m.Instrument].NoteOn(m.Pitch, float32(m.Velocity)/127)
	case NoteOffMsg:
		if m.Instrument < 0 || m.Instrument >= len(e.pools) {
			e.alertBadInstrument()
			return
		}
		e.pools[m.Instrument].NoteOff(m.Pitch)
	case KillVoicesMsg:
		for _, pool := range e.pools {
			pool.KillAll()
		}
	case SetPatternMsg:
		e.sched.SetPattern(m.Instrument, m.Pattern)
	case StripGainMsg:
		m.Strip.SetGain(m.Gain)
	case StripPanMsg:
		m.Strip.SetPan(m.Pan)
	case StripMuteMsg:
		m.Strip.SetMute(m.Mute)
	case StripSoloMsg:
		m.Strip.SetSolo(m.Solo)
	case SendLevelMsg:
		if m.Channel >= 0 && m.Channel < e.graph.NumChannels() {
			e.graph.Channel(m.Channel).SetSendLevel(m.Send, m.Level)
		}
	case InsertParamMsg:
		if err := m.Insert.Apply(m.Name, m.Value); err != nil {
			TrySend(e.broker.ToControl, MsgToControl{Data: Alert{
				Name: "InsertParam", Message: err.Error(), Priority: AlertWarning,
			}})
		}
	}
}

// alertBadInstrument reports an event naming a nonexistent instrument. The
// event is dropped either way; with a fixed instrument set this only happens
// through a corrupted message, so one alert is enough.
func (e *Engine) alertBadInstrument() {
	if e.badInstr {
		return
	}
	e.badInstr = true
	TrySend(e.broker.ToControl, MsgToControl{Data: Alert{
		Name: "BadInstrument", Message: "event for a nonexistent instrument dropped", Priority: AlertWarning,
	}})
}

func (e *Engine) releaseAll() {
	for _, pool := range e.pools {
		pool.ReleaseAll()
	}
}

// Stats reads the published counters. Safe from any goroutine; allocates
// only the pool slice, so it is for polling, not for the render path.
func (e *Engine) Stats() Stats {
	pools := make([]PoolStats, len(e.pools))
	for i, pool := range e.pools {
		pools[i] = pool.Stats()
	}
	return Stats{
		Playing:       e.playingFlag.Load(),
		Beat:          math.Float64frombits(e.beatBits.Load()),
		BPM:           math.Float64frombits(e.bpmBits.Load()),
		Clock:         e.clockPub.Load(),
		RenderTime:    time.Duration(e.renderTime.Load()),
		EventsPending: e.sched.Pending(),
		EventsDropped: e.sched.Dropped(),
		EventsPurged:  e.sched.Purged(),
		Pools:         pools,
	}
}

// Play renders the song offline from the start to its end plus a two second
// tail, and returns the rendered audio.
func Play(song *mixdown.Song, factory GeneratorFactory) (mixdown.AudioBuffer, error) {
	broker := NewBroker()
	e, err := New(song, broker, factory)
	if err != nil {
		return nil, err
	}
	broker.ToEngine <- StartMsg{}
	buffer := make(mixdown.AudioBuffer, song.LengthFrames(2))
	if _, err := e.ReadAudio(buffer); err != nil {
		return nil, fmt.Errorf("rendering song: %w", err)
	}
	return buffer, nil
}
