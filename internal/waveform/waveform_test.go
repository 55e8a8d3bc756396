package waveform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeWindow(channels, width int, at func(c, t int) int16) [][]int16 {
	win := make([][]int16, channels)
	for c := range win {
		win[c] = make([]int16, width)
		for t := range win[c] {
			win[c][t] = at(c, t)
		}
	}
	return win
}

func TestSnippetSetStartsNaN(t *testing.T) {
	set := NewSnippetSet(3, 7, 2)
	require.Equal(t, 2, set.Slots())
	assert.Zero(t, set.FilledCount())
	for slot := 0; slot < 2; slot++ {
		for c := 0; c < 3; c++ {
			for _, v := range set.Snippet(slot)[c] {
				assert.True(t, math.IsNaN(v))
			}
		}
	}
}

func TestFillAndMeanExcludesMissing(t *testing.T) {
	const channels, width = 2, 83
	set := NewSnippetSet(channels, width, 3)

	// Two filled slots with a spike at the window center, one left missing.
	spike := func(amp int16) func(c, t int) int16 {
		return func(c, t int) int16 {
			if c == 1 && t == 41 {
				return amp
			}
			return 0
		}
	}
	set.Fill(0, makeWindow(channels, width, spike(100)))
	set.Fill(1, makeWindow(channels, width, spike(300)))

	res := Aggregate(9, set, false)
	assert.Equal(t, int32(9), res.UnitID)
	assert.Equal(t, 2, res.SnippetCount)

	// The missing slot must not drag the mean down: (100+300)/2, not /3.
	assert.InDelta(t, 200, res.Mean[1][41], 1e-9)
	assert.InDelta(t, 0, res.Mean[0][41], 1e-9)
}

func TestBaselineCorrection(t *testing.T) {
	const channels, width = 3, 83
	set := NewSnippetSet(channels, width, 2)

	// A constant DC offset per channel plus a late spike.
	set.Fill(0, makeWindow(channels, width, func(c, t int) int16 {
		v := int16(50 * (c + 1))
		if t == 41 {
			v += 400
		}
		return v
	}))
	set.Fill(1, makeWindow(channels, width, func(c, t int) int16 {
		return int16(30 * (c + 1))
	}))

	res := Aggregate(1, set, true)

	// The corrected mean has a numerically zero baseline on every channel.
	for c := 0; c < channels; c++ {
		var head float64
		for t := 0; t < BaselineSamples; t++ {
			head += res.Mean[c][t]
		}
		assert.InDelta(t, 0, head/BaselineSamples, 1e-9, "mean channel %d", c)
	}

	// So does every retained snippet.
	require.NotNil(t, res.Snippets)
	for slot := 0; slot < 2; slot++ {
		for c := 0; c < channels; c++ {
			var head float64
			for t := 0; t < BaselineSamples; t++ {
				head += res.Snippets[slot][c][t]
			}
			assert.InDelta(t, 0, head/BaselineSamples, 1e-9, "slot %d channel %d", slot, c)
		}
	}
}

func TestPeakChannel(t *testing.T) {
	const channels, width = 5, 83
	set := NewSnippetSet(channels, width, 1)
	set.Fill(0, makeWindow(channels, width, func(c, t int) int16 {
		switch {
		case c == 3 && t == 41:
			return -900 // largest absolute deflection, negative-going
		case c == 1 && t == 41:
			return 400
		default:
			return 0
		}
	}))

	res := Aggregate(2, set, false)
	assert.Equal(t, 3, res.PeakChannel)
	require.Len(t, res.PeakWaveform(), width)
	assert.InDelta(t, res.Mean[3][41], res.PeakWaveform()[41], 1e-9)
}

func TestPeakChannelTieBreaksFirst(t *testing.T) {
	const channels, width = 4, 83
	set := NewSnippetSet(channels, width, 1)
	set.Fill(0, makeWindow(channels, width, func(c, t int) int16 {
		if (c == 1 || c == 2) && t == 41 {
			return 500
		}
		return 0
	}))

	res := Aggregate(3, set, false)
	assert.Equal(t, 1, res.PeakChannel)
}

func TestAllMissingUnit(t *testing.T) {
	set := NewSnippetSet(4, 83, 5)

	res := Aggregate(8, set, false)
	assert.Zero(t, res.SnippetCount)
	assert.Equal(t, UndefinedChannel, res.PeakChannel)
	assert.Nil(t, res.PeakWaveform())
	for c := range res.Mean {
		for _, v := range res.Mean[c] {
			assert.True(t, math.IsNaN(v), "missing data must stay NaN, not become zero")
		}
	}
}

func TestSmoothKernel(t *testing.T) {
	k := smoothKernel(SmoothSpan)
	require.Len(t, k, SmoothSpan)
	var sum float64
	for _, w := range k {
		sum += w
	}
	assert.InDelta(t, 1, sum, 1e-12)
	assert.Greater(t, k[2], k[1])
	assert.Greater(t, k[1], k[0])
	assert.InDelta(t, k[0], k[4], 1e-12)
}

func TestSmoothRowEdges(t *testing.T) {
	kernel := smoothKernel(SmoothSpan)
	row := []float64{10, 10, 10, 10, 10, 10}
	sm := smoothRow(row, kernel)
	for _, v := range sm {
		assert.InDelta(t, 10, v, 1e-9, "a constant row must survive smoothing, edges included")
	}
}
