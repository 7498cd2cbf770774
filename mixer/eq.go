package mixer

import (
	"github.com/chewxy/math32"

	"github.com/mixdown-audio/mixdown"
)

// EQ is a three-band equalizer: low shelf, mid peak, high shelf, each an RBJ
// cookbook biquad run in transposed direct form II.
//
// Parameters: "lowgain", "midgain", "highgain" (dB, -24..24), "lowfreq",
// "midfreq", "highfreq" (Hz), "midq".
type EQ struct {
	lowGain, midGain, highGain float64 // dB
	lowFreq, midFreq, highFreq float64 // Hz
	midQ                       float64

	low, mid, high biquad
}

func NewEQ() *EQ {
	eq := &EQ{
		lowFreq:  250,
		midFreq:  1000,
		highFreq: 4000,
		midQ:     0.7,
	}
	eq.update()
	return eq
}

func (eq *EQ) update() {
	eq.low.lowShelf(eq.lowFreq, eq.lowGain)
	eq.mid.peaking(eq.midFreq, eq.midGain, eq.midQ)
	eq.high.highShelf(eq.highFreq, eq.highGain)
}

func (eq *EQ) Process(l, r []float32) error {
	for i := range l {
		x, y := l[i], r[i]
		x, y = eq.low.process(x, y)
		x, y = eq.mid.process(x, y)
		x, y = eq.high.process(x, y)
		l[i], r[i] = x, y
	}
	return nil
}

func (eq *EQ) Set(name string, value float64) error {
	switch name {
	case "lowgain":
		eq.lowGain = clampf(value, -24, 24)
	case "midgain":
		eq.midGain = clampf(value, -24, 24)
	case "highgain":
		eq.highGain = clampf(value, -24, 24)
	case "lowfreq":
		eq.lowFreq = clampf(value, 20, 1000)
	case "midfreq":
		eq.midFreq = clampf(value, 100, 10000)
	case "highfreq":
		eq.highFreq = clampf(value, 1000, 18000)
	case "midq":
		eq.midQ = clampf(value, 0.1, 10)
	default:
		return errUnknownParam("eq", name)
	}
	eq.update()
	return nil
}

func (eq *EQ) Reset() {
	eq.low.resetState()
	eq.mid.resetState()
	eq.high.resetState()
}

// biquad holds one set of filter coefficients and the per-channel state of a
// transposed direct form II realization.
type biquad struct {
	b0, b1, b2, a1, a2 float32
	z1L, z2L, z1R, z2R float32
}

func (f *biquad) process(l, r float32) (float32, float32) {
	yl := f.b0*l + f.z1L
	f.z1L = f.b1*l - f.a1*yl + f.z2L
	f.z2L = f.b2*l - f.a2*yl
	yr := f.b0*r + f.z1R
	f.z1R = f.b1*r - f.a1*yr + f.z2R
	f.z2R = f.b2*r - f.a2*yr
	return yl, yr
}

func (f *biquad) resetState() {
	f.z1L, f.z2L, f.z1R, f.z2R = 0, 0, 0, 0
}

func (f *biquad) set(b0, b1, b2, a0, a1, a2 float32) {
	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1, f.a2 = a1/a0, a2/a0
}

func (f *biquad) lowShelf(freq, gainDB float64) {
	a := math32.Pow(10, float32(gainDB)/40)
	w0 := 2 * math32.Pi * float32(freq) / mixdown.SampleRate
	cw, sw := math32.Cos(w0), math32.Sin(w0)
	alpha := sw / 2 * math32.Sqrt2
	beta := 2 * math32.Sqrt(a) * alpha
	f.set(
		a*((a+1)-(a-1)*cw+beta),
		2*a*((a-1)-(a+1)*cw),
		a*((a+1)-(a-1)*cw-beta),
		(a+1)+(a-1)*cw+beta,
		-2*((a-1)+(a+1)*cw),
		(a+1)+(a-1)*cw-beta,
	)
}

func (f *biquad) highShelf(freq, gainDB float64) {
	a := math32.Pow(10, float32(gainDB)/40)
	w0 := 2 * math32.Pi * float32(freq) / mixdown.SampleRate
	cw, sw := math32.Cos(w0), math32.Sin(w0)
	alpha := sw / 2 * math32.Sqrt2
	beta := 2 * math32.Sqrt(a) * alpha
	f.set(
		a*((a+1)+(a-1)*cw+beta),
		-2*a*((a-1)+(a+1)*cw),
		a*((a+1)+(a-1)*cw-beta),
		(a+1)-(a-1)*cw+beta,
		2*((a-1)-(a+1)*cw),
		(a+1)-(a-1)*cw-beta,
	)
}

func (f *biquad) peaking(freq, gainDB, q float64) {
	a := math32.Pow(10, float32(gainDB)/40)
	w0 := 2 * math32.Pi * float32(freq) / mixdown.SampleRate
	cw, sw := math32.Cos(w0), math32.Sin(w0)
	alpha := sw / (2 * float32(q))
	f.set(
		1+alpha*a,
		-2*cw,
		1-alpha*a,
		1+alpha/a,
		-2*cw,
		1-alpha/a,
	)
}
