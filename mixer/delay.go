package mixer

import (
	"math"

	"github.com/mixdown-audio/mixdown"
)

// Delay is a stereo feedback delay with an interpolated read head, so delay
// times that are not whole samples (and changes to the time) do not crackle.
//
// Parameters: "time" (seconds, up to 2), "feedback" (0..0.95), "mix" (0..1).
type Delay struct {
	lineL, lineR delayLine
	samples      float64
	feedback     float32
	mix          float32
}

const maxDelaySeconds = 2

func NewDelay() *Delay {
	n := maxDelaySeconds*mixdown.SampleRate + 1
	return &Delay{
		lineL:    delayLine{buf: make([]float32, n)},
		lineR:    delayLine{buf: make([]float32, n)},
		samples:  0.5 * mixdown.SampleRate,
		feedback: 0.4,
		mix:      0.3,
	}
}

func (d *Delay) Process(l, r []float32) error {
	for i := range l {
		wetL := d.lineL.readInterpolated(d.samples)
		wetR := d.lineR.readInterpolated(d.samples)
		d.lineL.write(l[i] + wetL*d.feedback)
		d.lineR.write(r[i] + wetR*d.feedback)
		l[i] += (wetL - l[i]) * d.mix
		r[i] += (wetR - r[i]) * d.mix
	}
	return nil
}

func (d *Delay) Set(name string, value float64) error {
	switch name {
	case "time":
		d.samples = clampf(value, 0.001, maxDelaySeconds) * mixdown.SampleRate
	case "feedback":
		d.feedback = float32(clampf(value, 0, 0.95))
	case "mix":
		d.mix = float32(clampf(value, 0, 1))
	default:
		return errUnknownParam("delay", name)
	}
	return nil
}

func (d *Delay) Reset() {
	d.lineL.reset()
	d.lineR.reset()
}

type delayLine struct {
	buf []float32
	pos int
}

func (dl *delayLine) write(v float32) {
	dl.buf[dl.pos] = v
	dl.pos++
	if dl.pos == len(dl.buf) {
		dl.pos = 0
	}
}

// readInterpolated reads delay samples behind the write head with linear
// interpolation between the neighboring samples.
func (dl *delayLine) readInterpolated(delay float64) float32 {
	pos := float64(dl.pos) - delay
	for pos < 0 {
		pos += float64(len(dl.buf))
	}
	i0 := int(pos)
	frac := float32(pos - math.Floor(pos))
	i1 := i0 + 1
	if i1 >= len(dl.buf) {
		i1 = 0
	}
	return dl.buf[i0]*(1-frac) + dl.buf[i1]*frac
}

func (dl *delayLine) reset() {
	clear(dl.buf)
	dl.pos = 0
}
