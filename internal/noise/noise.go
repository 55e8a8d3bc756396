// Package noise estimates per-channel noise levels of a recording from a
// handful of randomly placed windows, without any spike information. The
// profile helps callers judge whether a quiet peak channel is signal or
// floor.
package noise

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/mjibson/go-dsp/spectral"
	dspwindow "github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/stat"

	"github.com/lachioma/bombcell/internal/recording"
)

// ErrRecordingTooShort means the recording cannot fit even one probe
// window.
var ErrRecordingTooShort = errors.New("noise: recording shorter than probe window")

// madScale converts a median absolute deviation into a Gaussian sigma
// estimate.
const madScale = 1.4826

// Options tune the measurement.
type Options struct {
	Windows    int     // random probe windows to read
	Width      int     // samples per probe window
	SampleRate float64 // Hz, for the spectrum's frequency axis
	NFFT       int     // Welch segment length, 0 for 256
	Seed       int64   // 0 seeds from the clock
}

// ChannelStats is the noise level of one channel.
type ChannelStats struct {
	Channel int
	RMS     float64
	Sigma   float64 // robust estimate, scaled median absolute deviation
}

// Profile is the measured noise profile of a recording.
type Profile struct {
	Channels []ChannelStats
	Noisiest int // channel with the largest RMS

	// Welch power spectral density of the noisiest channel.
	PSD   []float64
	Freqs []float64
}

// Measure reads opt.Windows random windows and reduces them to a profile.
func Measure(rd recording.WindowReader, opt Options) (Profile, error) {
	if opt.Windows <= 0 {
		opt.Windows = 16
	}
	if opt.Width <= 0 {
		opt.Width = 4096
	}
	if opt.NFFT <= 0 {
		opt.NFFT = 256
	}
	seed := opt.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	lay := rd.Layout()
	if lay.TotalSamples < int64(opt.Width) {
		return Profile{}, ErrRecordingTooShort
	}
	channels := lay.SignalChannels()
	rng := rand.New(rand.NewSource(seed))
	span := lay.TotalSamples - int64(opt.Width) + 1

	samples := make([][]float64, channels)
	for w := 0; w < opt.Windows; w++ {
		win, err := rd.ReadWindow(rng.Int63n(span), opt.Width)
		if err != nil {
			return Profile{}, fmt.Errorf("probe window: %w", err)
		}
		for c := 0; c < channels; c++ {
			for _, v := range win[c] {
				samples[c] = append(samples[c], float64(v))
			}
		}
	}

	prof := Profile{Channels: make([]ChannelStats, channels)}
	for c := 0; c < channels; c++ {
		prof.Channels[c] = ChannelStats{
			Channel: c,
			RMS:     rms(samples[c]),
			Sigma:   robustSigma(samples[c]),
		}
		if prof.Channels[c].RMS > prof.Channels[prof.Noisiest].RMS {
			prof.Noisiest = c
		}
	}

	prof.PSD, prof.Freqs = spectral.Pwelch(samples[prof.Noisiest], opt.SampleRate, &spectral.PwelchOptions{
		NFFT:     opt.NFFT,
		Window:   dspwindow.Hann,
		Noverlap: opt.NFFT / 2,
	})
	return prof, nil
}

func rms(xs []float64) float64 {
	sq := make([]float64, len(xs))
	for i, v := range xs {
		sq[i] = v * v
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

// robustSigma estimates the noise sigma from the median absolute
// deviation, which shrugs off spike transients that inflate the RMS.
func robustSigma(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	med := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	devs := make([]float64, len(xs))
	for i, v := range xs {
		devs[i] = math.Abs(v - med)
	}
	sort.Float64s(devs)
	return madScale * stat.Quantile(0.5, stat.Empirical, devs, nil)
}
