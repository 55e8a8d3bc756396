package noise_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lachioma/bombcell/internal/noise"
	"github.com/lachioma/bombcell/internal/recording"
)

// flatReader serves synthetic windows: channel 0 alternates at a large
// amplitude, channel 1 is silent, channel 2 steps through a small ramp.
type flatReader struct {
	lay recording.Layout
}

func (r flatReader) Layout() recording.Layout { return r.lay }

func (r flatReader) ReadWindow(start int64, width int) ([][]int16, error) {
	if !r.lay.Contains(start, width) {
		return nil, recording.ErrOutOfBounds
	}
	win := make([][]int16, 3)
	for c := range win {
		win[c] = make([]int16, width)
	}
	for t := 0; t < width; t++ {
		pos := start + int64(t)
		if pos%2 == 0 {
			win[0][t] = 200
		} else {
			win[0][t] = -200
		}
		win[2][t] = int16(5 * (pos % 4))
	}
	return win, nil
}

func TestMeasure(t *testing.T) {
	rd := flatReader{lay: recording.Layout{Channels: 3, TotalSamples: 100000, FileSize: 600000}}

	prof, err := noise.Measure(rd, noise.Options{
		Windows:    8,
		Width:      512,
		SampleRate: 30000,
		Seed:       1,
	})
	require.NoError(t, err)
	require.Len(t, prof.Channels, 3)

	assert.Equal(t, 0, prof.Noisiest)
	assert.InDelta(t, 200, prof.Channels[0].RMS, 1e-6)
	assert.InDelta(t, 0, prof.Channels[1].RMS, 1e-6)
	assert.InDelta(t, math.Sqrt(87.5), prof.Channels[2].RMS, 1e-6)

	// Half the square wave's deviations from its median are zero, so its
	// MAD collapses; the 0,5,10,15 ramp has median 5 and median deviation 5.
	assert.InDelta(t, 0, prof.Channels[0].Sigma, 1e-6)
	assert.InDelta(t, 0, prof.Channels[1].Sigma, 1e-6)
	assert.InDelta(t, 5*1.4826, prof.Channels[2].Sigma, 1e-6)

	require.NotEmpty(t, prof.PSD)
	require.Len(t, prof.Freqs, len(prof.PSD))
	assert.LessOrEqual(t, prof.Freqs[len(prof.Freqs)-1], 15000.0, "spectrum tops out at Nyquist")
}

func TestMeasureTooShort(t *testing.T) {
	rd := flatReader{lay: recording.Layout{Channels: 3, TotalSamples: 100, FileSize: 600}}
	_, err := noise.Measure(rd, noise.Options{Windows: 2, Width: 512, SampleRate: 30000, Seed: 1})
	require.ErrorIs(t, err, noise.ErrRecordingTooShort)
}

func TestMeasureDeterministicForSeed(t *testing.T) {
	rd := flatReader{lay: recording.Layout{Channels: 3, TotalSamples: 100000, FileSize: 600000}}
	opt := noise.Options{Windows: 4, Width: 256, SampleRate: 30000, Seed: 77}

	a, err := noise.Measure(rd, opt)
	require.NoError(t, err)
	b, err := noise.Measure(rd, opt)
	require.NoError(t, err)
	assert.Equal(t, a.Channels, b.Channels)
	assert.Equal(t, a.PSD, b.PSD)
}
