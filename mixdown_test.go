package mixdown

import (
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func validSong() *Song {
	return &Song{
		BPM: 120,
		Instruments: []Instrument{{
			Name:         "lead",
			Kind:         KindSynth,
			PatternID:    "p",
			MaxPolyphony: 4,
			Envelope:     EnvelopeParams{Attack: 0.01, Sustain: 1, Release: 0.1},
		}},
		Patterns: []Pattern{{ID: "p", Length: 8, Notes: []Note{
			{Pitch: 60, Velocity: 100, Start: 0, Duration: 1},
		}}},
	}
}

func TestSongValidate(t *testing.T) {
	if err := validSong().Validate(); err != nil {
		t.Fatalf("valid song rejected: %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Song)
		want   string
	}{
		{"bpm too low", func(s *Song) { s.BPM = 10 }, "BPM"},
		{"bpm too high", func(s *Song) { s.BPM = 1200 }, "BPM"},
		{"no instruments", func(s *Song) { s.Instruments = nil }, "no instruments"},
		{"inverted loop", func(s *Song) { s.Loop = &LoopSpec{Start: 4, End: 2} }, "loop"},
		{"negative loop", func(s *Song) { s.Loop = &LoopSpec{Start: -1, End: 2} }, "loop"},
		{"unknown pattern", func(s *Song) { s.Instruments[0].PatternID = "nope" }, "unknown pattern"},
		{"duplicate pattern", func(s *Song) { s.Patterns = append(s.Patterns, s.Patterns[0]) }, "duplicate"},
		{"zero polyphony", func(s *Song) { s.Instruments[0].MaxPolyphony = 0 }, "polyphony"},
		{"bad kind", func(s *Song) { s.Instruments[0].Kind = "theremin" }, "kind"},
		{"bad pan", func(s *Song) { s.Instruments[0].Pan = 2 }, "pan"},
		{"bad sustain", func(s *Song) { s.Instruments[0].Envelope.Sustain = 1.5 }, "sustain"},
		{"unknown bus", func(s *Song) { s.Instruments[0].Sends = []SendDef{{Bus: "fx"}} }, "unknown bus"},
		{"sampler without params", func(s *Song) { s.Instruments[0].Kind = KindSampler }, "sampler"},
		{"note pitch", func(s *Song) { s.Patterns[0].Notes[0].Pitch = 200 }, "pitch"},
		{"note start past end", func(s *Song) { s.Patterns[0].Notes[0].Start = 9 }, "start"},
		{"note duration", func(s *Song) { s.Patterns[0].Notes[0].Duration = 0 }, "duration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			song := validSong()
			tc.mutate(song)
			err := song.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSongLength(t *testing.T) {
	song := validSong() // one 8 beat pattern, 4 beats per bar
	if got := song.LengthBeats(); got != 8 {
		t.Errorf("length %v beats, want 8", got)
	}
	song.Patterns[0].Length = 9 // rounds up to 3 bars
	if got := song.LengthBeats(); got != 12 {
		t.Errorf("length %v beats, want 12", got)
	}
	song.Patterns[0].Length = 8
	if got := song.LengthFrames(2); got != 8*22050+2*SampleRate {
		t.Errorf("length %v frames", got)
	}
	song.Instruments[0].PatternID = ""
	if got := song.LengthBeats(); got != 0 {
		t.Errorf("patternless song has length %v", got)
	}
}

func TestSongYAMLRoundTrip(t *testing.T) {
	song := validSong()
	song.Loop = &LoopSpec{Start: 0, End: 8}
	song.Buses = []BusDef{{Name: "verb", Effects: []EffectDef{
		{Type: "reverb", Params: map[string]float64{"mix": 1}},
	}}}
	song.Instruments[0].Sends = []SendDef{{Bus: "verb", Level: 0.3}}
	data, err := yaml.Marshal(song)
	if err != nil {
		t.Fatal(err)
	}
	var back Song
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if err := back.Validate(); err != nil {
		t.Fatalf("round-tripped song invalid: %v", err)
	}
	if back.BPM != 120 || back.Loop.End != 8 {
		t.Errorf("tempo or loop lost: %+v", back)
	}
	if back.Buses[0].Effects[0].Params["mix"] != 1 {
		t.Error("effect params lost")
	}
	if back.Instruments[0].Sends[0].Level != 0.3 {
		t.Error("send lost")
	}
}

func TestPatternSorted(t *testing.T) {
	p := Pattern{Length: 4, Notes: []Note{
		{Pitch: 64, Start: 2},
		{Pitch: 60, Start: 0},
		{Pitch: 55, Start: 2},
	}}
	sorted := p.Sorted()
	if sorted.Notes[0].Pitch != 60 || sorted.Notes[1].Pitch != 55 || sorted.Notes[2].Pitch != 64 {
		t.Errorf("wrong order: %+v", sorted.Notes)
	}
	if p.Notes[0].Pitch != 64 {
		t.Error("Sorted modified the original")
	}
}

func TestSampleDataMono(t *testing.T) {
	mono := &SampleData{L: []float32{1, 2}}
	if got := mono.Mono(); &got[0] != &mono.L[0] {
		t.Error("mono data should be shared, not copied")
	}
	stereo := &SampleData{L: []float32{1, 0}, R: []float32{0, 1}}
	got := stereo.Mono()
	if got[0] != 0.5 || got[1] != 0.5 {
		t.Errorf("stereo mixdown %v", got)
	}
}

func TestBufferSource(t *testing.T) {
	buf := make(AudioBuffer, 700)
	src := buf.Source()
	dst := make(AudioBuffer, 512)
	if n, err := src.ReadAudio(dst); n != 512 || err != nil {
		t.Fatalf("first read: %d, %v", n, err)
	}
	if n, err := src.ReadAudio(dst); n != 188 || err != nil {
		t.Fatalf("second read: %d, %v", n, err)
	}
	if _, err := src.ReadAudio(dst); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestWavPCM16(t *testing.T) {
	buffer := AudioBuffer{{1, -1}, {0.5, -0.5}}
	data, err := buffer.Wav(true)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("not a RIFF/WAVE file")
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); int(got) != len(data)-8 {
		t.Errorf("chunk size %d, file is %d bytes", got, len(data))
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		t.Errorf("wave format %d, want 1 (PCM)", format)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Errorf("bits per sample %d", bits)
	}
	samples := data[len(data)-8:]
	if got := int16(binary.LittleEndian.Uint16(samples[0:2])); got != 32767 {
		t.Errorf("full-scale sample encoded as %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(samples[2:4])); got != -32767 {
		t.Errorf("negative full-scale encoded as %d", got)
	}
}

func TestWavFloat(t *testing.T) {
	buffer := make(AudioBuffer, 100)
	data, err := buffer.Wav(false)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); int(got) != len(data)-8 {
		t.Errorf("chunk size %d, file is %d bytes", got, len(data))
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 3 {
		t.Errorf("wave format %d, want 3 (IEEE float)", format)
	}
	if string(data[38:42]) != "fact" {
		t.Error("float WAV missing fact chunk")
	}
	want := 12 + 8 + 18 + 12 + 8 + 100*2*4
	if len(data) != want {
		t.Errorf("file is %d bytes, want %d", len(data), want)
	}
}

func TestRaw(t *testing.T) {
	buffer := make(AudioBuffer, 64)
	data, err := buffer.Raw(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 64*2*4 {
		t.Errorf("raw float output is %d bytes", len(data))
	}
	data, err = buffer.Raw(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 64*2*2 {
		t.Errorf("raw pcm16 output is %d bytes", len(data))
	}
}
