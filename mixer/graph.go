package mixer

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"

	"github.com/mixdown-audio/mixdown"
)

// Graph is the complete routing graph: instrument channels feed the master
// directly and, through post-fader sends, the buses; buses feed the master;
// the master feeds the output. All buffers are allocated at construction for
// the maximum block size, so Process never allocates.
type Graph struct {
	channels []*Strip
	buses    []*Strip
	master   *Strip
	busIndex map[string]int

	frames int
	tmp    []float32
	saveL  []float32
	saveR  []float32

	// OnFault, if set, is called in the render context when an insert is
	// forced out of the signal path. It must not block or allocate; the
	// engine wires it to a non-blocking broker send.
	OnFault func(strip *Strip, ins *Insert, err error)
}

func NewGraph(song *mixdown.Song, maxBlock int) (*Graph, error) {
	g := &Graph{
		busIndex: make(map[string]int, len(song.Buses)),
		tmp:      make([]float32, maxBlock),
		saveL:    make([]float32, maxBlock),
		saveR:    make([]float32, maxBlock),
	}
	for i, def := range song.Buses {
		bus := newStrip(def.Name, gainOrUnity(def.Gain), 0, maxBlock, false)
		if err := buildChain(bus, def.Effects); err != nil {
			return nil, fmt.Errorf("bus %q: %w", def.Name, err)
		}
		g.buses = append(g.buses, bus)
		g.busIndex[def.Name] = i
	}
	for i := range song.Instruments {
		instr := &song.Instruments[i]
		ch := newStrip(instr.Name, float32(instr.GainOrDefault()), float32(instr.Pan), maxBlock, true)
		ch.mute = instr.Mute
		ch.solo = instr.Solo
		if err := buildChain(ch, instr.Effects); err != nil {
			return nil, fmt.Errorf("channel %q: %w", instr.Name, err)
		}
		for _, sd := range instr.Sends {
			bus, ok := g.busIndex[sd.Bus]
			if !ok {
				return nil, fmt.Errorf("channel %q: unknown bus %q", instr.Name, sd.Bus)
			}
			ch.sends = append(ch.sends, send{bus: bus, level: float32(sd.Level)})
		}
		g.channels = append(g.channels, ch)
	}
	g.master = newStrip("master", gainOrUnity(song.Master.Gain), 0, maxBlock, false)
	if err := buildChain(g.master, song.Master.Effects); err != nil {
		return nil, fmt.Errorf("master: %w", err)
	}
	return g, nil
}

func buildChain(s *Strip, defs []mixdown.EffectDef) error {
	for _, def := range defs {
		if _, err := s.AddInsert(def.Type, def.Params, -1); err != nil {
			return err
		}
	}
	return nil
}

func gainOrUnity(gain float64) float32 {
	if gain == 0 {
		return 1
	}
	return float32(gain)
}

func (g *Graph) NumChannels() int     { return len(g.channels) }
func (g *Graph) Channel(i int) *Strip { return g.channels[i] }
func (g *Graph) NumBuses() int        { return len(g.buses) }
func (g *Graph) Bus(i int) *Strip     { return g.buses[i] }
func (g *Graph) Master() *Strip       { return g.master }

// BusByName returns the bus strip with the given name.
func (g *Graph) BusByName(name string) (*Strip, bool) {
	i, ok := g.busIndex[name]
	if !ok {
		return nil, false
	}
	return g.buses[i], true
}

// BeginBlock starts a block of n frames: the channel input buffers are
// zeroed for the voice pools to accumulate into.
func (g *Graph) BeginBlock(n int) {
	g.frames = n
	for _, ch := range g.channels {
		clear(ch.in[:n])
	}
}

// Input returns the mono input buffer of a channel for the current block.
func (g *Graph) Input(channel int) []float32 {
	return g.channels[channel].in[:g.frames]
}

// Process runs the whole graph for the current block and writes the master
// output into out. Render-context only.
func (g *Graph) Process(out mixdown.AudioBuffer) {
	n := g.frames
	soloed := false
	for _, ch := range g.channels {
		if ch.solo {
			soloed = true
			break
		}
	}
	clear(g.master.l[:n])
	clear(g.master.r[:n])
	for _, bus := range g.buses {
		clear(bus.l[:n])
		clear(bus.r[:n])
	}
	for _, ch := range g.channels {
		audible := !ch.mute
		if soloed {
			audible = ch.solo // solo overrides mute
		}
		if !audible {
			ch.storePeaks(0, 0)
			continue
		}
		copy(ch.l[:n], ch.in[:n])
		copy(ch.r[:n], ch.in[:n])
		g.runChain(ch, n)
		lg, rg := panGains(ch.gain, ch.pan)
		vek32.MulNumber_Inplace(ch.l[:n], lg)
		vek32.MulNumber_Inplace(ch.r[:n], rg)
		for _, sd := range ch.sends {
			bus := g.buses[sd.bus]
			vek32.MulNumber_Into(g.tmp[:n], ch.l[:n], sd.level)
			vek32.Add_Inplace(bus.l[:n], g.tmp[:n])
			vek32.MulNumber_Into(g.tmp[:n], ch.r[:n], sd.level)
			vek32.Add_Inplace(bus.r[:n], g.tmp[:n])
		}
		vek32.Add_Inplace(g.master.l[:n], ch.l[:n])
		vek32.Add_Inplace(g.master.r[:n], ch.r[:n])
		g.publishPeaks(ch, n)
	}
	for _, bus := range g.buses {
		g.runChain(bus, n)
		vek32.MulNumber_Inplace(bus.l[:n], bus.gain)
		vek32.MulNumber_Inplace(bus.r[:n], bus.gain)
		vek32.Add_Inplace(g.master.l[:n], bus.l[:n])
		vek32.Add_Inplace(g.master.r[:n], bus.r[:n])
		g.publishPeaks(bus, n)
	}
	g.runChain(g.master, n)
	vek32.MulNumber_Inplace(g.master.l[:n], g.master.gain)
	vek32.MulNumber_Inplace(g.master.r[:n], g.master.gain)
	g.publishPeaks(g.master, n)
	for i := 0; i < n; i++ {
		out[i][0] = g.master.l[i]
		out[i][1] = g.master.r[i]
	}
}

// FlushTails resets the state of every insert so no audio from before a
// seek rings over into the new position. Render-context only.
func (g *Graph) FlushTails() {
	for _, ch := range g.channels {
		flushStrip(ch)
	}
	for _, bus := range g.buses {
		flushStrip(bus)
	}
	flushStrip(g.master)
}

func flushStrip(s *Strip) {
	for _, ins := range s.chain.Load().inserts {
		if !ins.faulted.Load() {
			ins.node.Reset()
		}
	}
}

// runChain runs the strip's inserts in order. A node that errors, panics or
// produces non-finite output is rolled back to its input, force-bypassed and
// reported; the rest of the chain keeps running.
func (g *Graph) runChain(s *Strip, n int) {
	chain := s.chain.Load()
	for _, ins := range chain.inserts {
		if ins.bypassed.Load() || ins.faulted.Load() {
			continue
		}
		copy(g.saveL[:n], s.l[:n])
		copy(g.saveR[:n], s.r[:n])
		err := processInsert(ins.node, s.l[:n], s.r[:n])
		if err == nil && (!finite(s.l[:n]) || !finite(s.r[:n])) {
			err = errNonFinite
		}
		if err != nil {
			copy(s.l[:n], g.saveL[:n])
			copy(s.r[:n], g.saveR[:n])
			ins.setFault(err)
			if g.OnFault != nil {
				g.OnFault(s, ins, err)
			}
		}
	}
}

func processInsert(node Node, l, r []float32) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("insert panicked: %v", p)
		}
	}()
	return node.Process(l, r)
}

var errNonFinite = fmt.Errorf("insert produced non-finite output")

// finite checks a block for NaN/Inf contamination. Both propagate through a
// mean, so one reduction covers the whole block.
func finite(x []float32) bool {
	m := vek32.Mean(x)
	return !math32.IsNaN(m) && !math32.IsInf(m, 0)
}

// panGains is the constant-power pan law: equal loudness at any pan
// position, -3 dB per side at center.
func panGains(gain, pan float32) (l, r float32) {
	angle := (pan + 1) * math32.Pi / 4
	return gain * math32.Cos(angle), gain * math32.Sin(angle)
}

func (g *Graph) publishPeaks(s *Strip, n int) {
	vek32.Abs_Into(g.tmp[:n], s.l[:n])
	peakL := vek32.Max(g.tmp[:n])
	vek32.Abs_Into(g.tmp[:n], s.r[:n])
	peakR := vek32.Max(g.tmp[:n])
	s.storePeaks(peakL, peakR)
}
