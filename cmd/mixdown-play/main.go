package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mixdown-audio/mixdown"
	"github.com/mixdown-audio/mixdown/engine"
	"github.com/mixdown-audio/mixdown/midiin"
	"github.com/mixdown-audio/mixdown/oto"
	"github.com/mixdown-audio/mixdown/synth"
	"github.com/mixdown-audio/mixdown/version"
	"github.com/mixdown-audio/mixdown/wavfile"
)

func main() {
	stdout := flag.Bool("s", false, "Do not write files; write to standard output instead.")
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the same directory where the original song file is.")
	play := flag.Bool("p", false, "Play the input songs (default behaviour when no other output is defined).")
	interactive := flag.Bool("i", false, "Play the song through the real-time engine with an interactive transport console.")
	midiInput := flag.String("m", "", "Open a MIDI input whose name starts with the given prefix for live note input (interactive mode). Use \"*\" for the first available input.")
	rawOut := flag.Bool("r", false, "Output the rendered song as .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the rendered song as .wav file. By default, saves stereo float32 buffer to disk.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut && !*interactive {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the file
	}
	var audioContext mixdown.AudioContext
	if *play || *interactive {
		var err error
		audioContext, err = oto.NewContext()
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not acquire oto AudioContext: %v\n", err)
			os.Exit(1)
		}
	}
	process := func(filename string) error {
		song, err := loadSong(filename)
		if err != nil {
			return err
		}
		if *interactive {
			return runConsole(song, audioContext, *midiInput)
		}
		buffer, err := engine.Play(song, synth.NewGenerator)
		if err != nil {
			return fmt.Errorf("rendering failed: %w", err)
		}
		var playWaiter mixdown.CloserWaiter
		if *play {
			playWaiter = audioContext.Play(buffer.Source())
		}
		output := func(extension string, contents []byte) error {
			if *stdout {
				os.Stdout.Write(contents)
				return nil
			}
			dir, name := filepath.Split(filename)
			if *directory != "" {
				dir = *directory
			}
			name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
			f := filepath.Join(dir, name)
			if dir != "" {
				if err := os.MkdirAll(dir, os.ModePerm); err != nil {
					return fmt.Errorf("could not create output directory %v: %v", dir, err)
				}
			}
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", f, err)
			}
			return nil
		}
		if *rawOut {
			raw, err := buffer.Raw(*pcm)
			if err != nil {
				return fmt.Errorf("could not generate .raw file: %v", err)
			}
			if err := output(".raw", raw); err != nil {
				return fmt.Errorf("error outputting .raw file: %v", err)
			}
		}
		if *wavOut {
			wav, err := buffer.Wav(*pcm)
			if err != nil {
				return fmt.Errorf("could not generate .wav file: %v", err)
			}
			if err := output(".wav", wav); err != nil {
				return fmt.Errorf("error outputting .wav file: %v", err)
			}
		}
		if *play {
			playWaiter.Wait()
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if err := process(param); err != nil {
			fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
			retval = 1
		}
	}
	os.Exit(retval)
}

func loadSong(filename string) (*mixdown.Song, error) {
	inputBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read file %v: %v", filename, err)
	}
	var song mixdown.Song
	if err := yaml.Unmarshal(inputBytes, &song); err != nil {
		return nil, fmt.Errorf("the song could not be parsed: %v", err)
	}
	if err := song.Validate(); err != nil {
		return nil, fmt.Errorf("invalid song %v: %w", filename, err)
	}
	if err := wavfile.LoadInto(&song, filepath.Dir(filename)); err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}
	return &song, nil
}

func runConsole(song *mixdown.Song, audioContext mixdown.AudioContext, midiPrefix string) error {
	broker := engine.NewBroker()
	eng, err := engine.New(song, broker, synth.NewGenerator)
	if err != nil {
		return err
	}
	if midiPrefix != "" {
		prefix := midiPrefix
		if prefix == "*" {
			prefix = ""
		}
		input, err := midiin.Open(broker, prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "MIDI input unavailable: %v\n", err)
		} else {
			fmt.Printf("MIDI input: %s\n", input.Name())
			defer input.Close()
		}
	}
	playback := audioContext.Play(eng)
	defer playback.Close()
	return console(eng)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "mixdown command line utility for playing .yml song files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
