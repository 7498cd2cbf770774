package mixer

import (
	"github.com/chewxy/math32"

	"github.com/mixdown-audio/mixdown"
)

// Compressor is a hard-knee downward compressor with a smoothed peak
// follower: the follower tracks the louder channel so the stereo image does
// not shift when only one side crosses the threshold.
//
// Parameters: "threshold" (dB, -60..0), "ratio" (1..20), "attack" and
// "release" (seconds), "makeup" (linear gain).
type Compressor struct {
	threshold float32 // dB
	ratio     float32
	attack    float64 // seconds
	release   float64 // seconds
	makeup    float32

	attackCoef  float32
	releaseCoef float32
	envelope    float32
}

func NewCompressor() *Compressor {
	c := &Compressor{
		threshold: -18,
		ratio:     4,
		attack:    0.003,
		release:   0.1,
		makeup:    1,
	}
	c.update()
	return c
}

func (c *Compressor) update() {
	c.attackCoef = math32.Exp(-1 / float32(c.attack*mixdown.SampleRate))
	c.releaseCoef = math32.Exp(-1 / float32(c.release*mixdown.SampleRate))
}

func (c *Compressor) Process(l, r []float32) error {
	slope := 1 - 1/c.ratio
	for i := range l {
		in := math32.Abs(l[i])
		if ar := math32.Abs(r[i]); ar > in {
			in = ar
		}
		if in > c.envelope {
			c.envelope = in + (c.envelope-in)*c.attackCoef
		} else {
			c.envelope = in + (c.envelope-in)*c.releaseCoef
		}
		gain := c.makeup
		envDB := 20 * math32.Log10(c.envelope+1e-10)
		if envDB > c.threshold {
			gain *= math32.Pow(10, (c.threshold-envDB)*slope/20)
		}
		l[i] *= gain
		r[i] *= gain
	}
	return nil
}

func (c *Compressor) Set(name string, value float64) error {
	switch name {
	case "threshold":
		c.threshold = float32(clampf(value, -60, 0))
	case "ratio":
		c.ratio = float32(clampf(value, 1, 20))
	case "attack":
		c.attack = clampf(value, 0.0001, 1)
	case "release":
		c.release = clampf(value, 0.001, 5)
	case "makeup":
		c.makeup = float32(clampf(value, 0, 4))
	default:
		return errUnknownParam("compressor", name)
	}
	c.update()
	return nil
}

func (c *Compressor) Reset() {
	c.envelope = 0
}
