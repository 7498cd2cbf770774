package mixer

// Reverb is a small Schroeder reverberator: four parallel damped comb
// filters per channel into a series of four allpasses, with the right
// channel's delay lines offset slightly for stereo width. The width control
// mixes the two wet channels mid/side style.
//
// Parameters: "room" (0..1), "damp" (0..1), "width" (0..1), "mix" (0..1).
type Reverb struct {
	combL [4]comb
	combR [4]comb
	allL  [4]allpass
	allR  [4]allpass

	room  float32
	damp  float32
	width float32
	mix   float32
}

// Comb and allpass lengths in samples, tuned for 44.1 kHz.
var (
	combTunings    = [4]int{1116, 1188, 1277, 1356}
	allpassTunings = [4]int{556, 441, 341, 225}
)

const (
	stereoSpread = 23
	reverbInGain = 0.015
	allpassFeed  = 0.5
)

func NewReverb() *Reverb {
	rv := &Reverb{room: 0.5, damp: 0.5, width: 1, mix: 0.3}
	for i := range rv.combL {
		rv.combL[i].buf = make([]float32, combTunings[i])
		rv.combR[i].buf = make([]float32, combTunings[i]+stereoSpread)
	}
	for i := range rv.allL {
		rv.allL[i].buf = make([]float32, allpassTunings[i])
		rv.allR[i].buf = make([]float32, allpassTunings[i]+stereoSpread)
	}
	rv.update()
	return rv
}

func (rv *Reverb) update() {
	feedback := 0.7 + rv.room*0.28
	damp := rv.damp * 0.4
	for i := range rv.combL {
		rv.combL[i].feedback = feedback
		rv.combR[i].feedback = feedback
		rv.combL[i].damp = damp
		rv.combR[i].damp = damp
	}
}

func (rv *Reverb) Process(l, r []float32) error {
	wet1 := rv.width/2 + 0.5
	wet2 := (1 - rv.width) / 2
	for i := range l {
		input := (l[i] + r[i]) * reverbInGain
		var outL, outR float32
		for c := range rv.combL {
			outL += rv.combL[c].process(input)
			outR += rv.combR[c].process(input)
		}
		for a := range rv.allL {
			outL = rv.allL[a].process(outL)
			outR = rv.allR[a].process(outR)
		}
		wetL := outL*wet1 + outR*wet2
		wetR := outR*wet1 + outL*wet2
		l[i] += (wetL - l[i]) * rv.mix
		r[i] += (wetR - r[i]) * rv.mix
	}
	return nil
}

func (rv *Reverb) Set(name string, value float64) error {
	switch name {
	case "room":
		rv.room = float32(clampf(value, 0, 1))
	case "damp":
		rv.damp = float32(clampf(value, 0, 1))
	case "width":
		rv.width = float32(clampf(value, 0, 1))
	case "mix":
		rv.mix = float32(clampf(value, 0, 1))
	default:
		return errUnknownParam("reverb", name)
	}
	rv.update()
	return nil
}

func (rv *Reverb) Reset() {
	for i := range rv.combL {
		rv.combL[i].reset()
		rv.combR[i].reset()
	}
	for i := range rv.allL {
		rv.allL[i].reset()
		rv.allR[i].reset()
	}
}

// comb is a feedback comb filter with a one-pole lowpass in the loop, which
// damps high frequencies faster than lows the way air does.
type comb struct {
	buf      []float32
	pos      int
	feedback float32
	damp     float32
	store    float32
}

func (c *comb) process(in float32) float32 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = in + c.store*c.feedback
	c.pos++
	if c.pos == len(c.buf) {
		c.pos = 0
	}
	return out
}

func (c *comb) reset() {
	clear(c.buf)
	c.pos = 0
	c.store = 0
}

type allpass struct {
	buf []float32
	pos int
}

func (a *allpass) process(in float32) float32 {
	bufout := a.buf[a.pos]
	a.buf[a.pos] = in + bufout*allpassFeed
	a.pos++
	if a.pos == len(a.buf) {
		a.pos = 0
	}
	return bufout - in
}

func (a *allpass) reset() {
	clear(a.buf)
	a.pos = 0
}
