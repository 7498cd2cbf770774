// Package oto adapts github.com/ebitengine/oto/v3 to mixdown.AudioContext.
// oto uses a pull model: its player reads interleaved little-endian float32
// bytes from an io.Reader, which here wraps a mixdown.AudioSource.
package oto

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/mixdown-audio/mixdown"
)

type Context struct {
	ctx *oto.Context
}

const bytesPerFrame = 8 // 2 channels x float32

// NewContext initializes the audio device and blocks until it is ready.
func NewContext() (*Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   mixdown.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   50 * time.Millisecond,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx}, nil
}

// Play starts pulling audio from the source until it returns io.EOF or the
// returned CloserWaiter is closed.
func (c *Context) Play(src mixdown.AudioSource) mixdown.CloserWaiter {
	r := &sourceReader{
		src:  src,
		buf:  make(mixdown.AudioBuffer, 1024),
		done: make(chan struct{}),
	}
	p := c.ctx.NewPlayer(r)
	p.Play()
	return &playback{player: p, done: r.done}
}

// Close suspends the audio device. oto contexts cannot be torn down, so
// this is as closed as they get.
func (c *Context) Close() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// sourceReader converts AudioSource blocks into the byte stream oto reads.
type sourceReader struct {
	src    mixdown.AudioSource
	buf    mixdown.AudioBuffer
	done   chan struct{}
	closed bool
}

func (r *sourceReader) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames > len(r.buf) {
		frames = len(r.buf)
	}
	if frames == 0 {
		return 0, nil
	}
	n, err := r.src.ReadAudio(r.buf[:frames])
	for i := 0; i < n; i++ {
		putFloat32LE(p[i*bytesPerFrame:], r.buf[i][0])
		putFloat32LE(p[i*bytesPerFrame+4:], r.buf[i][1])
	}
	if err != nil {
		if !r.closed {
			r.closed = true
			close(r.done)
		}
		if err != io.EOF {
			return n * bytesPerFrame, err
		}
		if n == 0 {
			return 0, io.EOF
		}
	}
	return n * bytesPerFrame, nil
}

func putFloat32LE(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

type playback struct {
	player *oto.Player
	done   chan struct{}
}

func (p *playback) Close() error {
	return p.player.Close()
}

// Wait blocks until the source is exhausted and the player has drained its
// buffer.
func (p *playback) Wait() {
	<-p.done
	for p.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
}
