package mixer

import (
	"github.com/chewxy/math32"

	"github.com/mixdown-audio/mixdown"
)

// Filter is a stereo Chamberlin state-variable filter usable as a lowpass,
// highpass or bandpass insert.
//
// Parameters: "cutoff" (Hz), "resonance" (0.5..10), "mode" (0 = lowpass,
// 1 = highpass, 2 = bandpass).
type Filter struct {
	cutoff    float64
	resonance float64
	mode      int

	f, q        float32
	lowL, bandL float32
	lowR, bandR float32
}

const (
	FilterLowpass = iota
	FilterHighpass
	FilterBandpass
)

func NewFilter() *Filter {
	fl := &Filter{cutoff: 1000, resonance: 0.7}
	fl.update()
	return fl
}

func (fl *Filter) update() {
	// the Chamberlin topology goes unstable towards Nyquist, so the cutoff
	// is capped well below it
	fl.f = 2 * math32.Sin(math32.Pi*float32(fl.cutoff)/mixdown.SampleRate)
	fl.q = 1 / float32(fl.resonance)
}

func (fl *Filter) Process(l, r []float32) error {
	for i := range l {
		fl.lowL, fl.bandL, l[i] = svfTick(l[i], fl.lowL, fl.bandL, fl.f, fl.q, fl.mode)
		fl.lowR, fl.bandR, r[i] = svfTick(r[i], fl.lowR, fl.bandR, fl.f, fl.q, fl.mode)
	}
	return nil
}

func svfTick(x, low, band, f, q float32, mode int) (float32, float32, float32) {
	low += f * band
	high := x - low - q*band
	band += f * high
	switch mode {
	case FilterHighpass:
		return low, band, high
	case FilterBandpass:
		return low, band, band
	default:
		return low, band, low
	}
}

func (fl *Filter) Set(name string, value float64) error {
	switch name {
	case "cutoff":
		fl.cutoff = clampf(value, 20, 8000)
	case "resonance":
		fl.resonance = clampf(value, 0.5, 10)
	case "mode":
		fl.mode = int(clampf(value, 0, 2))
	default:
		return errUnknownParam("filter", name)
	}
	fl.update()
	return nil
}

func (fl *Filter) Reset() {
	fl.lowL, fl.bandL, fl.lowR, fl.bandR = 0, 0, 0, 0
}
