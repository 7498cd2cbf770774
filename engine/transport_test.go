package engine

import (
	"math"
	"testing"
)

func TestTransportBeatDerivation(t *testing.T) {
	tr := NewTransport(120, 4)
	tr.Play()
	tr.Advance(22050) // one beat at 120 BPM
	if got := tr.Beat(); math.Abs(got-1) > 1e-9 {
		t.Errorf("expected beat 1, got %v", got)
	}
	tr.Advance(11025)
	if got := tr.Beat(); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("expected beat 1.5, got %v", got)
	}
	pos := tr.Position()
	if pos.Bar != 0 || pos.Beat != 1 || math.Abs(pos.Frac-0.5) > 1e-9 {
		t.Errorf("unexpected position: %+v", pos)
	}
}

func TestTransportDoesNotAdvanceWhenStopped(t *testing.T) {
	tr := NewTransport(120, 4)
	tr.Advance(4096)
	if tr.Frame() != 0 {
		t.Errorf("stopped transport advanced to frame %v", tr.Frame())
	}
}

func TestTransportLoopWrapKeepsFraction(t *testing.T) {
	tr := NewTransport(120, 4)
	tr.SetLoop(0, 1, true) // 22050 frames
	tr.Play()
	tr.Advance(22050 + 100)
	if got := tr.Frame(); got != 100 {
		t.Errorf("expected frame 100 after wrap, got %v", got)
	}
}

// A four bar loop at 120 BPM rendered in 512-frame blocks through a thousand
// wraps must come back to exactly the position plain modular arithmetic
// predicts; any accumulated drift is an error.
func TestTransportLoopNoDriftOverThousandIterations(t *testing.T) {
	tr := NewTransport(120, 4)
	tr.SetLoop(0, 16, true)
	tr.Play()
	loopFrames := 16.0 * tr.SamplesPerBeat() // 352800
	var advanced, wraps int64
	for wraps < 1000 {
		if tr.Advance(512) {
			wraps++
		}
		advanced += 512
	}
	expected := float64(advanced) - float64(wraps)*loopFrames
	if got := tr.Frame(); got != expected {
		t.Errorf("drift after %d wraps: got frame %v, expected %v", wraps, got, expected)
	}
}

func TestTransportFractionalLoopStaysInRegion(t *testing.T) {
	tr := NewTransport(130, 4) // fractional frames per beat
	tr.SetLoop(1, 3, true)
	tr.Play()
	tr.Seek(1)
	for i := 0; i < 10000; i++ {
		tr.Advance(512)
		beat := tr.Beat()
		if beat < 1-1e-6 || beat >= 3 {
			t.Fatalf("beat %v escaped loop region at iteration %d", beat, i)
		}
	}
}

func TestTransportSetBPMKeepsFrame(t *testing.T) {
	tr := NewTransport(120, 4)
	tr.Play()
	tr.Advance(22050)
	tr.SetBPM(60)
	if tr.Frame() != 22050 {
		t.Errorf("frame changed on tempo change: %v", tr.Frame())
	}
	if got := tr.Beat(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected beat 0.5 at 60 BPM, got %v", got)
	}
}

func TestTransportSetBPMClamps(t *testing.T) {
	tr := NewTransport(120, 4)
	tr.SetBPM(0)
	if tr.BPM() != 20 {
		t.Errorf("expected clamp to 20, got %v", tr.BPM())
	}
	tr.SetBPM(100000)
	if tr.BPM() != 999 {
		t.Errorf("expected clamp to 999, got %v", tr.BPM())
	}
}

func TestTransportInvertedLoopDisabled(t *testing.T) {
	tr := NewTransport(120, 4)
	tr.SetLoop(4, 2, true)
	if _, _, enabled := tr.Loop(); enabled {
		t.Error("inverted loop region should disable looping")
	}
}
