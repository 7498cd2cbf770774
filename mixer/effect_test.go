package mixer

import (
	"math"
	"testing"

	"github.com/mixdown-audio/mixdown"
)

func sine(n int, freq float64) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / mixdown.SampleRate))
	}
	return buf
}

func peak(buf []float32) float32 {
	var p float32
	for _, v := range buf {
		if a := float32(math.Abs(float64(v))); a > p {
			p = a
		}
	}
	return p
}

func stereo(n int) (l, r []float32) {
	return make([]float32, n), make([]float32, n)
}

func TestNewEffectAppliesParams(t *testing.T) {
	node, err := NewEffect("delay", map[string]float64{"time": 0.25, "mix": 1})
	if err != nil {
		t.Fatal(err)
	}
	if d := node.(*Delay); d.mix != 1 || d.samples != 0.25*mixdown.SampleRate {
		t.Errorf("params not applied: mix %v samples %v", d.mix, d.samples)
	}
	if _, err := NewEffect("delay", map[string]float64{"bogus": 1}); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func TestDelayEchoTiming(t *testing.T) {
	d := NewDelay()
	d.Set("time", 0.1) // 4410 samples
	d.Set("feedback", 0)
	d.Set("mix", 0.5)
	l, r := stereo(9000)
	l[0], r[0] = 1, 1
	if err := d.Process(l, r); err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(l[0])-0.5) > 1e-3 {
		t.Errorf("dry sample %v, want 0.5", l[0])
	}
	if math.Abs(float64(l[4410])-0.5) > 1e-2 {
		t.Errorf("echo %v at sample 4410, want 0.5", l[4410])
	}
	if peak(l[1:4400]) > 1e-3 {
		t.Errorf("signal before the echo: peak %v", peak(l[1:4400]))
	}
}

func TestDelayFeedbackRepeats(t *testing.T) {
	d := NewDelay()
	d.Set("time", 0.05) // 2205 samples
	d.Set("feedback", 0.5)
	d.Set("mix", 1)
	l, r := stereo(7000)
	l[0], r[0] = 1, 1
	d.Process(l, r)
	first, second := l[2205], l[4410]
	if first < 0.9 {
		t.Fatalf("first echo %v", first)
	}
	if math.Abs(float64(second)-0.5) > 0.05 {
		t.Errorf("second echo %v, want about half the first", second)
	}
}

func TestDelayResetClearsTail(t *testing.T) {
	d := NewDelay()
	d.Set("mix", 1)
	l, r := stereo(4096)
	l[0], r[0] = 1, 1
	d.Process(l, r)
	d.Reset()
	l2, r2 := stereo(mixdown.SampleRate)
	d.Process(l2, r2)
	if p := peak(l2); p > 0 {
		t.Errorf("tail survived reset: peak %v", p)
	}
}

func TestReverbTailDecays(t *testing.T) {
	rv := NewReverb()
	rv.Set("mix", 1)
	l, r := stereo(4096)
	l[0], r[0] = 1, 1
	rv.Process(l, r)
	early := peak(l[1200:])
	if early == 0 {
		t.Fatal("no reverb tail")
	}
	var late []float32
	for i := 0; i < 20; i++ {
		l2, r2 := stereo(4096)
		rv.Process(l2, r2)
		late = l2
	}
	if p := peak(late); p >= early {
		t.Errorf("tail did not decay: %v then %v", early, p)
	}
}

func TestReverbResetSilences(t *testing.T) {
	rv := NewReverb()
	rv.Set("mix", 1)
	l, r := stereo(4096)
	l[0], r[0] = 1, 1
	rv.Process(l, r)
	rv.Reset()
	l2, r2 := stereo(4096)
	rv.Process(l2, r2)
	if p := peak(l2); p > 0 {
		t.Errorf("tail survived reset: peak %v", p)
	}
}

func TestCompressorAttenuatesAboveThreshold(t *testing.T) {
	c := NewCompressor() // -18 dB threshold, ratio 4
	n := 8820
	l, r := make([]float32, n), make([]float32, n)
	for i := range l {
		l[i], r[i] = 0.5, 0.5 // about -6 dB, well above threshold
	}
	c.Process(l, r)
	got := l[n-1]
	if got > 0.25 || got < 0.1 {
		t.Errorf("compressed level %v, expected roughly 0.18", got)
	}
}

func TestCompressorPassesBelowThreshold(t *testing.T) {
	c := NewCompressor()
	n := 4410
	l, r := make([]float32, n), make([]float32, n)
	for i := range l {
		l[i], r[i] = 0.05, 0.05 // about -26 dB
	}
	c.Process(l, r)
	if math.Abs(float64(l[n-1])-0.05) > 1e-3 {
		t.Errorf("below-threshold signal changed: %v", l[n-1])
	}
}

func TestCompressorMakeup(t *testing.T) {
	c := NewCompressor()
	c.Set("makeup", 2)
	n := 441
	l, r := make([]float32, n), make([]float32, n)
	for i := range l {
		l[i], r[i] = 0.05, 0.05
	}
	c.Process(l, r)
	if math.Abs(float64(l[n-1])-0.1) > 1e-3 {
		t.Errorf("makeup gain not applied: %v", l[n-1])
	}
}

func TestEQLowShelfBoost(t *testing.T) {
	eq := NewEQ()
	eq.Set("lowgain", 12)
	l := sine(mixdown.SampleRate, 100)
	r := sine(mixdown.SampleRate, 100)
	eq.Process(l, r)
	if p := peak(l[len(l)/2:]); p < 2.5 {
		t.Errorf("100 Hz through a +12 dB low shelf peaked at %v", p)
	}
}

func TestEQHighShelfCut(t *testing.T) {
	eq := NewEQ()
	eq.Set("highgain", -24)
	l := sine(mixdown.SampleRate, 8000)
	r := sine(mixdown.SampleRate, 8000)
	eq.Process(l, r)
	if p := peak(l[len(l)/2:]); p > 0.5 {
		t.Errorf("8 kHz through a -24 dB high shelf peaked at %v", p)
	}
}

func TestEQFlatIsTransparent(t *testing.T) {
	eq := NewEQ()
	l := sine(8192, 440)
	r := sine(8192, 440)
	eq.Process(l, r)
	if p := peak(l[4096:]); p < 0.9 || p > 1.1 {
		t.Errorf("flat EQ changed the level: peak %v", p)
	}
}

func TestFilterLowpassCutsHighs(t *testing.T) {
	fl := NewFilter()
	fl.Set("cutoff", 200)
	l := sine(mixdown.SampleRate/2, 6000)
	r := sine(mixdown.SampleRate/2, 6000)
	fl.Process(l, r)
	if p := peak(l[len(l)/2:]); p > 0.3 {
		t.Errorf("6 kHz through a 200 Hz lowpass peaked at %v", p)
	}
}

func TestFilterHighpassPassesHighs(t *testing.T) {
	fl := NewFilter()
	fl.Set("cutoff", 200)
	fl.Set("mode", FilterHighpass)
	l := sine(mixdown.SampleRate/2, 6000)
	r := sine(mixdown.SampleRate/2, 6000)
	fl.Process(l, r)
	if p := peak(l[len(l)/2:]); p < 0.7 {
		t.Errorf("6 kHz through a 200 Hz highpass peaked at %v", p)
	}
}

func TestFilterResetClearsState(t *testing.T) {
	fl := NewFilter()
	l := sine(4096, 440)
	r := sine(4096, 440)
	fl.Process(l, r)
	fl.Reset()
	if fl.lowL != 0 || fl.bandL != 0 || fl.lowR != 0 || fl.bandR != 0 {
		t.Error("filter state survived reset")
	}
}
