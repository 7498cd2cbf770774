// Package mixer implements the signal-routing graph of the engine: one strip
// per instrument, send/return buses and the master strip, each with a chain
// of insert effects. Chains are immutable snapshots swapped atomically, so
// the control side can reconfigure routing while audio renders: the render
// context either sees the old chain or the new one, never a half-built one.
package mixer

import (
	"fmt"
	"math"
	"sync/atomic"
)

type (
	// Node is one insert effect. Process filters l and r in place and
	// returns an error if the node cannot continue. Set adjusts a named
	// parameter; Reset clears internal state (delay lines, envelopes).
	// Process, Set and Reset are render-context only and must not allocate.
	Node interface {
		Process(l, r []float32) error
		Set(name string, value float64) error
		Reset()
	}

	// Chain is an immutable snapshot of a strip's insert order. Only the
	// *Insert pointers are shared between snapshots; the slice itself is
	// never modified after the snapshot is published.
	Chain struct {
		inserts []*Insert
	}

	// Insert is one slot in a chain: the effect node plus its flags. The
	// flags are atomics because they cross the control/render boundary; the
	// node itself is only ever touched by the render context once the insert
	// is published.
	Insert struct {
		typ      string
		params   map[string]float64 // construction params, for rebuilding
		node     Node
		bypassed atomic.Bool
		faulted  atomic.Bool
		fault    atomic.Pointer[string]
	}

	// Strip is one mixer strip: an instrument channel, a bus or the master.
	// Gain, pan, mute and solo are render-owned and changed through engine
	// messages; the insert chain is reconfigured from the control side via
	// the snapshot-swap methods. Peak meters are published as atomics for
	// the control side to poll.
	Strip struct {
		name  string
		chain atomic.Pointer[Chain]

		gain float32
		pan  float32
		mute bool
		solo bool

		in    []float32 // mono voice input; instrument channels only
		l, r  []float32
		sends []send

		peakL atomic.Uint32 // float32 bits
		peakR atomic.Uint32
	}

	send struct {
		bus   int
		level float32
	}
)

func newStrip(name string, gain, pan float32, maxBlock int, withInput bool) *Strip {
	s := &Strip{
		name: name,
		gain: gain,
		pan:  pan,
		l:    make([]float32, maxBlock),
		r:    make([]float32, maxBlock),
	}
	if withInput {
		s.in = make([]float32, maxBlock)
	}
	s.chain.Store(&Chain{})
	return s
}

func (s *Strip) Name() string { return s.name }

// SetGain, SetPan, SetMute and SetSolo are render-context only; the control
// side reaches them through engine messages.
func (s *Strip) SetGain(gain float32) { s.gain = gain }
func (s *Strip) SetPan(pan float32)   { s.pan = pan }
func (s *Strip) SetMute(mute bool)    { s.mute = mute }
func (s *Strip) SetSolo(solo bool)    { s.solo = solo }

func (s *Strip) Gain() float32 { return s.gain }
func (s *Strip) Pan() float32  { return s.pan }
func (s *Strip) Muted() bool   { return s.mute }
func (s *Strip) Soloed() bool  { return s.solo }

// SetSendLevel adjusts a send. Render-context only.
func (s *Strip) SetSendLevel(send int, level float32) {
	if send >= 0 && send < len(s.sends) {
		s.sends[send].level = level
	}
}

// Peaks returns the absolute peak levels of the last processed block. Safe
// from any goroutine.
func (s *Strip) Peaks() (l, r float32) {
	return floatFromBits(s.peakL.Load()), floatFromBits(s.peakR.Load())
}

func (s *Strip) storePeaks(l, r float32) {
	s.peakL.Store(floatBits(l))
	s.peakR.Store(floatBits(r))
}

// Inserts returns a copy of the current chain. Safe from any goroutine.
func (s *Strip) Inserts() []*Insert {
	c := s.chain.Load()
	ret := make([]*Insert, len(c.inserts))
	copy(ret, c.inserts)
	return ret
}

// AddInsert builds a new effect and publishes a chain with it inserted at
// pos (out-of-range pos appends). Control-context; the node is fully
// constructed and configured before the render context can see it. At most
// one goroutine may reconfigure chains.
func (s *Strip) AddInsert(typ string, params map[string]float64, pos int) (*Insert, error) {
	node, err := NewEffect(typ, params)
	if err != nil {
		return nil, fmt.Errorf("adding insert to %s: %w", s.name, err)
	}
	ins := &Insert{typ: typ, params: copyParams(params), node: node}
	old := s.chain.Load().inserts
	if pos < 0 || pos > len(old) {
		pos = len(old)
	}
	next := make([]*Insert, 0, len(old)+1)
	next = append(next, old[:pos]...)
	next = append(next, ins)
	next = append(next, old[pos:]...)
	s.chain.Store(&Chain{inserts: next})
	return ins, nil
}

// RemoveInsert publishes a chain without the insert. Returns false if the
// insert is not in the chain. Control-context.
func (s *Strip) RemoveInsert(ins *Insert) bool {
	old := s.chain.Load().inserts
	next := make([]*Insert, 0, len(old))
	found := false
	for _, i := range old {
		if i == ins {
			found = true
			continue
		}
		next = append(next, i)
	}
	if found {
		s.chain.Store(&Chain{inserts: next})
	}
	return found
}

// ReplaceInsert swaps a (typically faulted) insert for a freshly built one
// of the same type and construction parameters. Control-context.
func (s *Strip) ReplaceInsert(ins *Insert) (*Insert, error) {
	node, err := NewEffect(ins.typ, ins.params)
	if err != nil {
		return nil, fmt.Errorf("replacing insert on %s: %w", s.name, err)
	}
	fresh := &Insert{typ: ins.typ, params: ins.params, node: node}
	old := s.chain.Load().inserts
	next := make([]*Insert, len(old))
	found := false
	for i, cur := range old {
		if cur == ins {
			next[i] = fresh
			found = true
		} else {
			next[i] = cur
		}
	}
	if !found {
		return nil, fmt.Errorf("replacing insert on %s: insert not in chain", s.name)
	}
	s.chain.Store(&Chain{inserts: next})
	return fresh, nil
}

func (ins *Insert) Type() string { return ins.typ }

// SetBypassed toggles the insert without removing it, keeping its state
// warm. Safe from any goroutine.
func (ins *Insert) SetBypassed(b bool) { ins.bypassed.Store(b) }
func (ins *Insert) Bypassed() bool     { return ins.bypassed.Load() }

// Faulted reports whether the node failed and was forced out of the signal
// path. Fault returns the diagnostic.
func (ins *Insert) Faulted() bool { return ins.faulted.Load() }

func (ins *Insert) Fault() string {
	if s := ins.fault.Load(); s != nil {
		return *s
	}
	return ""
}

func (ins *Insert) setFault(err error) {
	msg := err.Error()
	ins.fault.Store(&msg)
	ins.faulted.Store(true)
}

// Apply sets a node parameter. Render-context only; the engine routes
// control-side parameter changes here through its message queue.
func (ins *Insert) Apply(name string, value float64) error {
	return ins.node.Set(name, value)
}

func floatBits(f float32) uint32     { return math.Float32bits(f) }
func floatFromBits(b uint32) float32 { return math.Float32frombits(b) }

func copyParams(params map[string]float64) map[string]float64 {
	ret := make(map[string]float64, len(params))
	for k, v := range params {
		ret[k] = v
	}
	return ret
}
