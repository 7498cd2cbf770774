// Package wavfile loads .wav files into mixdown.SampleData.
package wavfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/youpy/go-wav"

	"github.com/mixdown-audio/mixdown"
)

// Load reads a mono or stereo .wav file. Samples are converted to float32
// regardless of the bit depth on disk; the original sample rate is kept so
// the sampler can resample during playback.
func Load(path string) (*mixdown.SampleData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sample: %w", err)
	}
	defer f.Close()
	r := wav.NewReader(f)
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("reading wav format of %s: %w", path, err)
	}
	data := &mixdown.SampleData{SampleRate: int(format.SampleRate)}
	stereo := format.NumChannels > 1
	for {
		samples, err := r.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading samples from %s: %w", path, err)
		}
		for _, sample := range samples {
			data.L = append(data.L, float32(r.FloatValue(sample, 0)))
			if stereo {
				data.R = append(data.R, float32(r.FloatValue(sample, 1)))
			}
		}
	}
	if len(data.L) == 0 {
		return nil, fmt.Errorf("%s contains no audio", path)
	}
	return data, nil
}

// LoadInto loads the samples of every sampler instrument in the song,
// resolving relative paths against dir.
func LoadInto(song *mixdown.Song, dir string) error {
	for i := range song.Instruments {
		instr := &song.Instruments[i]
		if instr.Kind != mixdown.KindSampler || instr.Sampler == nil {
			continue
		}
		path := instr.Sampler.File
		if path == "" {
			return fmt.Errorf("instrument %q: sampler has no file", instr.Name)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		data, err := Load(path)
		if err != nil {
			return fmt.Errorf("instrument %q: %w", instr.Name, err)
		}
		instr.Sampler.Sample = data
	}
	return nil
}
