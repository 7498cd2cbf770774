// Package midiin feeds live MIDI note input into the engine through the
// broker. Notes arriving on MIDI channel n trigger instrument n.
package midiin

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/mixdown-audio/mixdown/engine"
)

type Input struct {
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()
	broker *engine.Broker
}

// Open opens a MIDI input and starts forwarding its note events to the
// broker. With an empty namePrefix the first available input is used.
func Open(broker *engine.Broker, namePrefix string) (*Input, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("creating MIDI driver: %w", err)
	}
	ins, err := driver.Ins()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("listing MIDI inputs: %w", err)
	}
	var in drivers.In
	for _, candidate := range ins {
		if namePrefix == "" || strings.HasPrefix(candidate.String(), namePrefix) {
			in = candidate
			break
		}
	}
	if in == nil {
		driver.Close()
		return nil, errors.New("no matching MIDI input found")
	}
	if err := in.Open(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("opening MIDI input %s: %w", in, err)
	}
	m := &Input{driver: driver, in: in, broker: broker}
	stop, err := midi.ListenTo(in, m.handleMessage)
	if err != nil {
		in.Close()
		driver.Close()
		return nil, fmt.Errorf("listening to MIDI input %s: %w", in, err)
	}
	m.stop = stop
	return m, nil
}

func (m *Input) Name() string { return m.in.String() }

// handleMessage runs in the driver's callback goroutine; sends are
// non-blocking so a stuck engine only drops notes.
func (m *Input) handleMessage(msg midi.Message, timestampms int32) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		engine.TrySend[any](m.broker.ToEngine, engine.NoteOnMsg{
			Instrument: int(channel),
			Pitch:      int(key),
			Velocity:   velocity,
		})
	case msg.GetNoteOff(&channel, &key, &velocity):
		engine.TrySend[any](m.broker.ToEngine, engine.NoteOffMsg{
			Instrument: int(channel),
			Pitch:      int(key),
		})
	}
}

func (m *Input) Close() {
	if m.stop != nil {
		m.stop()
	}
	if m.in != nil && m.in.IsOpen() {
		m.in.Close()
	}
	m.driver.Close()
}
