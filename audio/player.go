package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoFmt  Format
)

// Player previews speech artifacts on the default output device
type Player struct {
	ctx *oto.Context
}

// NewPlayer opens the audio device for f. Only 16-bit formats are supported.
func NewPlayer(f Format) (*Player, error) {
	if f.BitsPerSample != 16 {
		return nil, fmt.Errorf("player: unsupported bit depth %d", f.BitsPerSample)
	}
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if otoErr == nil {
			<-ready
			otoFmt = f
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("player: open audio device: %w", otoErr)
	}
	if otoFmt != f {
		return nil, fmt.Errorf("player: device already opened at %d Hz/%d ch", otoFmt.SampleRate, otoFmt.Channels)
	}
	return &Player{ctx: otoCtx}, nil
}

// Play blocks until the artifact finishes or ctx is done
func (p *Player) Play(ctx context.Context, a *Artifact) error {
	pcm := a.PCM()
	if len(pcm) == 0 {
		return errors.New("player: nothing to play")
	}
	pl := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer pl.Close()
	pl.Play()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for pl.IsPlaying() {
		select {
		case <-ctx.Done():
			pl.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
