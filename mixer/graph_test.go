package mixer

import (
	"math"
	"testing"

	"github.com/mixdown-audio/mixdown"
)

func graphSong() *mixdown.Song {
	return &mixdown.Song{
		BPM: 120,
		Instruments: []mixdown.Instrument{
			{Name: "a", Kind: mixdown.KindSynth, MaxPolyphony: 1},
			{Name: "b", Kind: mixdown.KindSynth, MaxPolyphony: 1},
		},
	}
}

func newTestGraph(t *testing.T, song *mixdown.Song) *Graph {
	t.Helper()
	g, err := NewGraph(song, 256)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// runGraph feeds a constant level into the given channels and processes one
// block, returning the master output.
func runGraph(g *Graph, n int, levels map[int]float32) mixdown.AudioBuffer {
	g.BeginBlock(n)
	for ch, level := range levels {
		in := g.Input(ch)
		for i := range in {
			in[i] = level
		}
	}
	out := make(mixdown.AudioBuffer, n)
	g.Process(out)
	return out
}

const center = 0.70710678 // constant-power pan at center

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-3 }

func TestGraphUnityPath(t *testing.T) {
	g := newTestGraph(t, graphSong())
	out := runGraph(g, 64, map[int]float32{0: 1})
	if !near(out[10][0], center) || !near(out[10][1], center) {
		t.Errorf("center-panned unity input came out as %v/%v", out[10][0], out[10][1])
	}
}

func TestGraphPanLaw(t *testing.T) {
	lg, rg := panGains(1, 0)
	if !near(lg, center) || !near(rg, center) {
		t.Errorf("center pan gains %v/%v", lg, rg)
	}
	lg, rg = panGains(1, -1)
	if !near(lg, 1) || !near(rg, 0) {
		t.Errorf("hard left gains %v/%v", lg, rg)
	}
	lg, rg = panGains(1, 1)
	if !near(lg, 0) || !near(rg, 1) {
		t.Errorf("hard right gains %v/%v", lg, rg)
	}
	// equal power at any position
	lg, rg = panGains(1, 0.3)
	if p := lg*lg + rg*rg; !near(p, 1) {
		t.Errorf("power %v at pan 0.3", p)
	}
}

func TestGraphMute(t *testing.T) {
	g := newTestGraph(t, graphSong())
	g.Channel(0).SetMute(true)
	out := runGraph(g, 64, map[int]float32{0: 1, 1: 1})
	if !near(out[10][0], center) {
		t.Errorf("expected only channel b, got %v", out[10][0])
	}
	if l, _ := g.Channel(0).Peaks(); l != 0 {
		t.Errorf("muted channel shows peak %v", l)
	}
}

func TestGraphSoloOverridesMute(t *testing.T) {
	g := newTestGraph(t, graphSong())
	g.Channel(0).SetMute(true)
	g.Channel(0).SetSolo(true)
	out := runGraph(g, 64, map[int]float32{0: 1, 1: 1})
	// the muted-but-soloed channel sounds, the unsoloed one does not
	if !near(out[10][0], center) {
		t.Errorf("expected only the soloed channel, got %v", out[10][0])
	}
}

func TestGraphSendToBus(t *testing.T) {
	song := graphSong()
	song.Buses = []mixdown.BusDef{{Name: "fx"}}
	song.Instruments[0].Sends = []mixdown.SendDef{{Bus: "fx", Level: 0.5}}
	g := newTestGraph(t, song)
	out := runGraph(g, 64, map[int]float32{0: 1})
	// direct path plus the post-fader send through the unity bus
	if want := float32(1.5 * center); !near(out[10][0], want) {
		t.Errorf("got %v, want %v", out[10][0], want)
	}
	if l, _ := g.Bus(0).Peaks(); !near(l, 0.5*center) {
		t.Errorf("bus peak %v", l)
	}
}

func TestGraphSendLevelChange(t *testing.T) {
	song := graphSong()
	song.Buses = []mixdown.BusDef{{Name: "fx"}}
	song.Instruments[0].Sends = []mixdown.SendDef{{Bus: "fx", Level: 0.5}}
	g := newTestGraph(t, song)
	g.Channel(0).SetSendLevel(0, 0)
	out := runGraph(g, 64, map[int]float32{0: 1})
	if !near(out[10][0], center) {
		t.Errorf("send at level 0 still contributed: %v", out[10][0])
	}
}

func TestGraphUnknownSendBus(t *testing.T) {
	song := graphSong()
	song.Instruments[0].Sends = []mixdown.SendDef{{Bus: "nope", Level: 0.5}}
	if _, err := NewGraph(song, 256); err == nil {
		t.Fatal("expected error for unknown send bus")
	}
}

type brokenNode struct {
	nan    bool
	panics bool
}

func (n *brokenNode) Process(l, r []float32) error {
	if n.panics {
		panic("broken")
	}
	for i := range l {
		l[i], r[i] = 9, 9
	}
	if n.nan {
		l[0] = float32(math.NaN())
	}
	return nil
}
func (n *brokenNode) Set(string, float64) error { return nil }
func (n *brokenNode) Reset()                    {}

func injectNode(s *Strip, node Node) *Insert {
	ins := &Insert{typ: "test", node: node}
	s.chain.Store(&Chain{inserts: []*Insert{ins}})
	return ins
}

func TestGraphFaultRollsBackAndBypasses(t *testing.T) {
	g := newTestGraph(t, graphSong())
	ins := injectNode(g.Channel(0), &brokenNode{nan: true})
	var faults int
	g.OnFault = func(strip *Strip, in *Insert, err error) {
		faults++
		if strip != g.Channel(0) || in != ins {
			t.Error("fault reported for the wrong strip or insert")
		}
	}
	out := runGraph(g, 64, map[int]float32{0: 1})
	if !near(out[10][0], center) {
		t.Errorf("output not rolled back to the dry signal: %v", out[10][0])
	}
	if !ins.Faulted() || ins.Fault() == "" {
		t.Error("insert not marked faulted")
	}
	runGraph(g, 64, map[int]float32{0: 1})
	if faults != 1 {
		t.Errorf("fault reported %d times, the faulted insert should be skipped", faults)
	}
}

func TestGraphPanicInInsertIsContained(t *testing.T) {
	g := newTestGraph(t, graphSong())
	ins := injectNode(g.Channel(0), &brokenNode{panics: true})
	out := runGraph(g, 64, map[int]float32{0: 1})
	if !near(out[10][0], center) {
		t.Errorf("output not rolled back after panic: %v", out[10][0])
	}
	if !ins.Faulted() {
		t.Error("panicking insert not marked faulted")
	}
}

func TestGraphBypassedInsertIsSkipped(t *testing.T) {
	g := newTestGraph(t, graphSong())
	ins := injectNode(g.Channel(0), &brokenNode{nan: true})
	ins.SetBypassed(true)
	out := runGraph(g, 64, map[int]float32{0: 1})
	if !near(out[10][0], center) {
		t.Errorf("bypassed insert still processed: %v", out[10][0])
	}
	if ins.Faulted() {
		t.Error("bypassed insert faulted")
	}
}

func TestStripInsertLifecycle(t *testing.T) {
	g := newTestGraph(t, graphSong())
	s := g.Channel(0)
	ins, err := s.AddInsert("delay", map[string]float64{"mix": 0.4}, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Inserts(); len(got) != 1 || got[0] != ins {
		t.Fatalf("chain after add: %v", got)
	}
	second, err := s.AddInsert("eq", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Inserts(); got[0] != second || got[1] != ins {
		t.Error("insert at position 0 did not prepend")
	}
	fresh, err := s.ReplaceInsert(ins)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Inserts(); got[1] != fresh {
		t.Error("replace did not swap the insert in place")
	}
	if !s.RemoveInsert(fresh) {
		t.Error("remove failed")
	}
	if s.RemoveInsert(fresh) {
		t.Error("second remove of the same insert succeeded")
	}
	if got := s.Inserts(); len(got) != 1 {
		t.Errorf("%d inserts left", len(got))
	}
}

// Chain reconfiguration races the render loop: every processed block must see
// a complete chain, so with only transparent inserts in flight the output
// stays the dry signal and nothing faults. Run with the race detector on.
func TestGraphChainSwapDuringRender(t *testing.T) {
	g := newTestGraph(t, graphSong())
	s := g.Channel(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			ins, err := s.AddInsert("eq", nil, 0)
			if err != nil {
				t.Error(err)
				return
			}
			fresh, err := s.ReplaceInsert(ins)
			if err != nil {
				t.Error(err)
				return
			}
			if !s.RemoveInsert(fresh) {
				t.Error("remove lost track of the replaced insert")
				return
			}
		}
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		out := runGraph(g, 64, map[int]float32{0: 1})
		for i, frame := range out {
			if !near(frame[0], center) || !near(frame[1], center) {
				t.Fatalf("frame %d came out %v/%v during a chain swap", i, frame[0], frame[1])
			}
		}
		for _, ins := range s.Inserts() {
			if ins.Faulted() {
				t.Fatalf("insert faulted during reconfiguration: %s", ins.Fault())
			}
		}
	}
}

func TestStripUnknownEffectType(t *testing.T) {
	g := newTestGraph(t, graphSong())
	if _, err := g.Channel(0).AddInsert("chorus", nil, -1); err == nil {
		t.Fatal("expected error for unknown effect type")
	}
}

func TestGraphPeaks(t *testing.T) {
	g := newTestGraph(t, graphSong())
	runGraph(g, 64, map[int]float32{0: 0.5})
	if l, r := g.Channel(0).Peaks(); !near(l, 0.5*center) || !near(r, 0.5*center) {
		t.Errorf("channel peaks %v/%v", l, r)
	}
	if l, _ := g.Master().Peaks(); !near(l, 0.5*center) {
		t.Errorf("master peak %v", l)
	}
}
