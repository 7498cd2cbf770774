package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mixdown-audio/mixdown"
	"github.com/mixdown-audio/mixdown/engine"
	"github.com/mixdown-audio/mixdown/mixer"
)

// console runs the interactive transport loop. Every command turns into
// messages on the broker; the console never touches engine state directly.
func console(eng *engine.Engine) error {
	rl, err := readline.New("mixdown> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	done := make(chan struct{})
	defer close(done)
	go drainAlerts(eng, rl.Stderr(), done)

	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			fmt.Println(err)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := eval(eng, fields[0], fields[1:]); err != nil {
			fmt.Println(err)
		}
	}
}

// drainAlerts prints engine diagnostics as they arrive, so a faulted insert
// or dropped events surface immediately instead of only in stats, and
// recycles the rendered-audio buffers the engine ships for metering. The
// receive timeout bounds how long the goroutine outlives the console.
func drainAlerts(eng *engine.Engine, w io.Writer, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		msg, ok := engine.TimeoutReceive(eng.Broker().ToControl, 500*time.Millisecond)
		if !ok {
			continue
		}
		switch data := msg.Data.(type) {
		case engine.Alert:
			fmt.Fprintf(w, "[%s] %s\n", data.Name, data.Message)
		case *mixdown.AudioBuffer:
			eng.Broker().PutAudioBuffer(data)
		}
	}
}

type command struct {
	name  string
	usage string
	run   func(*engine.Engine, []string) error
	arity int // -n means len(args) must be >= n
}

var commands = []command{
	{"play", "play", playCommand, 0},
	{"stop", "stop", stopCommand, 0},
	{"seek", "seek <beat>", seekCommand, 1},
	{"bpm", "bpm <value>", bpmCommand, 1},
	{"loop", "loop <start> <end> | loop off", loopCommand, -1},
	{"gain", "gain <strip> <value>", gainCommand, 2},
	{"pan", "pan <strip> <value>", panCommand, 2},
	{"mute", "mute <strip> on|off", muteCommand, 2},
	{"solo", "solo <strip> on|off", soloCommand, 2},
	{"send", "send <channel> <index> <level>", sendCommand, 3},
	{"fx", "fx <strip> add <type> | rm <index> | bypass <index> on|off | set <index> <param> <value> | list", fxCommand, -2},
	{"stats", "stats", statsCommand, 0},
}

func eval(eng *engine.Engine, name string, args []string) error {
	for _, cmd := range commands {
		if name != cmd.name {
			continue
		}
		if cmd.arity < 0 {
			if len(args) < -cmd.arity {
				return fmt.Errorf("usage: %s", cmd.usage)
			}
		} else if len(args) != cmd.arity {
			return fmt.Errorf("usage: %s", cmd.usage)
		}
		if err := cmd.run(eng, args); err != nil {
			return fmt.Errorf("%s error: %w", cmd.name, err)
		}
		return nil
	}
	return fmt.Errorf("unknown command: %s", name)
}

func send(eng *engine.Engine, msg any) error {
	if !engine.TrySend(eng.Broker().ToEngine, msg) {
		return errors.New("engine command queue full")
	}
	return nil
}

func playCommand(eng *engine.Engine, args []string) error {
	return send(eng, engine.StartMsg{})
}

func stopCommand(eng *engine.Engine, args []string) error {
	return send(eng, engine.StopMsg{})
}

func seekCommand(eng *engine.Engine, args []string) error {
	beat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	return send(eng, engine.SeekMsg{Beat: beat})
}

func bpmCommand(eng *engine.Engine, args []string) error {
	bpm, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	return send(eng, engine.BPMMsg{BPM: bpm})
}

func loopCommand(eng *engine.Engine, args []string) error {
	if args[0] == "off" {
		return send(eng, engine.LoopMsg{})
	}
	if len(args) != 2 {
		return errors.New("usage: loop <start> <end> | loop off")
	}
	start, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	end, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	return send(eng, engine.LoopMsg{Start: start, End: end, Enabled: true})
}

// strip resolves a strip argument: a channel index, a bus name, or "master".
func strip(eng *engine.Engine, arg string) (*mixer.Strip, error) {
	if arg == "master" {
		return eng.Graph().Master(), nil
	}
	if bus, ok := eng.Graph().BusByName(arg); ok {
		return bus, nil
	}
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 || i >= eng.Graph().NumChannels() {
		return nil, fmt.Errorf("no such strip: %s", arg)
	}
	return eng.Graph().Channel(i), nil
}

func gainCommand(eng *engine.Engine, args []string) error {
	s, err := strip(eng, args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(args[1], 32)
	if err != nil {
		return err
	}
	return send(eng, engine.StripGainMsg{Strip: s, Gain: float32(v)})
}

func panCommand(eng *engine.Engine, args []string) error {
	s, err := strip(eng, args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(args[1], 32)
	if err != nil {
		return err
	}
	return send(eng, engine.StripPanMsg{Strip: s, Pan: float32(v)})
}

func muteCommand(eng *engine.Engine, args []string) error {
	s, err := strip(eng, args[0])
	if err != nil {
		return err
	}
	on, err := onOff(args[1])
	if err != nil {
		return err
	}
	return send(eng, engine.StripMuteMsg{Strip: s, Mute: on})
}

func soloCommand(eng *engine.Engine, args []string) error {
	s, err := strip(eng, args[0])
	if err != nil {
		return err
	}
	on, err := onOff(args[1])
	if err != nil {
		return err
	}
	return send(eng, engine.StripSoloMsg{Strip: s, Solo: on})
}

func sendCommand(eng *engine.Engine, args []string) error {
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	level, err := strconv.ParseFloat(args[2], 32)
	if err != nil {
		return err
	}
	return send(eng, engine.SendLevelMsg{Channel: channel, Send: index, Level: float32(level)})
}

func fxCommand(eng *engine.Engine, args []string) error {
	s, err := strip(eng, args[0])
	if err != nil {
		return err
	}
	switch args[1] {
	case "add":
		if len(args) != 3 {
			return errors.New("usage: fx <strip> add <type>")
		}
		if _, err := s.AddInsert(args[2], nil, -1); err != nil {
			return err
		}
	case "rm":
		ins, err := insertArg(s, args[2:])
		if err != nil {
			return err
		}
		s.RemoveInsert(ins)
	case "bypass":
		if len(args) != 4 {
			return errors.New("usage: fx <strip> bypass <index> on|off")
		}
		ins, err := insertArg(s, args[2:3])
		if err != nil {
			return err
		}
		on, err := onOff(args[3])
		if err != nil {
			return err
		}
		ins.SetBypassed(on)
	case "set":
		if len(args) != 5 {
			return errors.New("usage: fx <strip> set <index> <param> <value>")
		}
		ins, err := insertArg(s, args[2:3])
		if err != nil {
			return err
		}
		value, err := strconv.ParseFloat(args[4], 64)
		if err != nil {
			return err
		}
		return send(eng, engine.InsertParamMsg{Insert: ins, Name: args[3], Value: value})
	case "list":
		for i, ins := range s.Inserts() {
			state := ""
			if ins.Bypassed() {
				state = " (bypassed)"
			}
			if ins.Faulted() {
				state = " (faulted: " + ins.Fault() + ")"
			}
			fmt.Printf("%d: %s%s\n", i, ins.Type(), state)
		}
	default:
		return fmt.Errorf("unknown fx subcommand: %s", args[1])
	}
	return nil
}

func insertArg(s *mixer.Strip, args []string) (*mixer.Insert, error) {
	if len(args) < 1 {
		return nil, errors.New("missing insert index")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, err
	}
	inserts := s.Inserts()
	if i < 0 || i >= len(inserts) {
		return nil, fmt.Errorf("no insert %d", i)
	}
	return inserts[i], nil
}

func statsCommand(eng *engine.Engine, args []string) error {
	stats := eng.Stats()
	fmt.Printf("playing=%v beat=%.3f bpm=%.1f render=%v events=%d dropped=%d purged=%d\n",
		stats.Playing, stats.Beat, stats.BPM, stats.RenderTime,
		stats.EventsPending, stats.EventsDropped, stats.EventsPurged)
	for i, pool := range stats.Pools {
		peakL, peakR := eng.Graph().Channel(i).Peaks()
		fmt.Printf("  %s: voices=%d stolen=%d (%d/s) peak=%.3f/%.3f\n",
			eng.Graph().Channel(i).Name(), pool.Active, pool.StolenTotal, pool.StolenPerSec, peakL, peakR)
	}
	return nil
}

func onOff(arg string) (bool, error) {
	switch arg {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", arg)
}
