package waveform

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// BaselineSamples is how many leading samples of a window are assumed
	// to precede the spike and define its baseline.
	BaselineSamples = 10

	// SmoothSpan is the width of the Gaussian window used to smooth the
	// mean before peak picking.
	SmoothSpan = 5

	smoothSigma = 0.4
)

// UndefinedChannel marks the peak channel of a unit with no usable
// snippets.
const UndefinedChannel = -1

// UnitResult is the reduced output for one unit. Mean is baseline
// corrected but unsmoothed; smoothing feeds peak picking only. A unit
// whose every snippet went missing carries an all-NaN mean and an
// undefined peak channel.
type UnitResult struct {
	UnitID       int32
	Mean         [][]float64
	PeakChannel  int
	SnippetCount int

	// Snippets is the slot-indexed corrected tensor, retained only when
	// the caller asked to keep it.
	Snippets [][][]float64
}

// PeakWaveform is the single-channel time series consumers score units
// with: the mean waveform at the unit's own peak channel. Nil when the
// peak channel is undefined.
func (r UnitResult) PeakWaveform() []float64 {
	if r.PeakChannel == UndefinedChannel || r.PeakChannel >= len(r.Mean) {
		return nil
	}
	return r.Mean[r.PeakChannel]
}

// Aggregate reduces a unit's snippet tensor to its mean waveform and peak
// channel. Missing slots are excluded from the mean rather than counted
// as zero. With keepSnippets the baseline-corrected tensor rides along in
// the result.
func Aggregate(unit int32, set *SnippetSet, keepSnippets bool) UnitResult {
	res := UnitResult{
		UnitID:       unit,
		Mean:         nanMean(set),
		PeakChannel:  UndefinedChannel,
		SnippetCount: set.FilledCount(),
	}

	if res.SnippetCount > 0 {
		baselineCorrect(res.Mean)
		res.PeakChannel = peakChannel(res.Mean)
	}

	if keepSnippets {
		for slot := range set.slots {
			if set.filled[slot] {
				baselineCorrect(set.slots[slot])
			}
		}
		res.Snippets = set.slots
	}
	return res
}

// nanMean averages across the snippet axis, skipping NaN cells.
func nanMean(set *SnippetSet) [][]float64 {
	mean := nanMatrix(set.channels, set.width)
	for c := 0; c < set.channels; c++ {
		for t := 0; t < set.width; t++ {
			var sum float64
			var n int
			for slot := range set.slots {
				if v := set.slots[slot][c][t]; !math.IsNaN(v) {
					sum += v
					n++
				}
			}
			if n > 0 {
				mean[c][t] = sum / float64(n)
			}
		}
	}
	return mean
}

// baselineCorrect subtracts each channel's mean over its leading samples
// from the whole channel row.
func baselineCorrect(m [][]float64) {
	for _, row := range m {
		head := BaselineSamples
		if head > len(row) {
			head = len(row)
		}
		floats.AddConst(-stat.Mean(row[:head], nil), row)
	}
}

// peakChannel picks the first channel whose smoothed absolute mean is
// largest. The first-wins tie break keeps the choice stable, though for
// low-amplitude or multi-peak units the winner can still sit on noise.
func peakChannel(mean [][]float64) int {
	kernel := smoothKernel(SmoothSpan)
	best, bestAmp := UndefinedChannel, math.Inf(-1)
	for c, row := range mean {
		amp := maxAbs(smoothRow(row, kernel))
		if amp > bestAmp {
			best, bestAmp = c, amp
		}
	}
	return best
}

// smoothKernel is a unit-sum Gaussian window.
func smoothKernel(span int) []float64 {
	k := make([]float64, span)
	for i := range k {
		k[i] = 1
	}
	window.Gaussian{Sigma: smoothSigma}.Transform(k)
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// smoothRow convolves a row with the kernel, renormalizing at the edges
// where the window is clipped.
func smoothRow(row, kernel []float64) []float64 {
	half := len(kernel) / 2
	out := make([]float64, len(row))
	for t := range row {
		var acc, wsum float64
		for k, w := range kernel {
			j := t + k - half
			if j < 0 || j >= len(row) {
				continue
			}
			acc += w * row[j]
			wsum += w
		}
		out[t] = acc / wsum
	}
	return out
}

func maxAbs(row []float64) float64 {
	m := 0.0
	for _, v := range row {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}
