// Command bombcell extracts per-unit mean waveforms and peak channels from
// raw extracellular recordings, guided by a spike-sorted event table.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/lachioma/bombcell/internal/config"
	"github.com/lachioma/bombcell/internal/extract"
	"github.com/lachioma/bombcell/internal/noise"
	"github.com/lachioma/bombcell/internal/recording"
	"github.com/lachioma/bombcell/internal/spikes"
	"github.com/lachioma/bombcell/internal/store"
	"github.com/lachioma/bombcell/internal/waveform"
)

func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "", "extract | show | noise")
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	spikesPath := flag.String("spikes", "", "spike table CSV, one unit,sample row per spike (mode=extract)")
	recPath := flag.String("recording", "", "recording file (overrides config)")
	resultsDir := flag.String("results", "", "results directory (overrides config)")
	force := flag.Bool("force", false, "ignore any cached result and re-extract")
	verbose := flag.Bool("verbose", false, "progress bars and debug logging")
	unit := flag.Int("unit", -1, "unit id to show (mode=show); -1 shows all")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *recPath != "" {
		cfg.Recording.Path = *recPath
	}
	if *resultsDir != "" {
		cfg.Results.Dir = *resultsDir
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "force":
			cfg.Extract.Force = *force
		case "verbose":
			cfg.Verbose = *verbose
		}
	})

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	switch *mode {
	case "extract":
		runExtract(cfg, log, *spikesPath)
	case "show":
		runShow(cfg, log, *unit)
	case "noise":
		runNoise(cfg, log)
	default:
		usage()
	}
}

func runExtract(cfg config.Config, log zerolog.Logger, spikesPath string) {
	if spikesPath == "" {
		log.Fatal().Msg("missing -spikes")
	}
	events, err := loadSpikes(spikesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load spike table")
	}
	log.Info().Int("spikes", len(events)).Str("recording", cfg.Recording.Path).
		Msg("spike table loaded")

	res, err := extract.New(cfg, log).Run(events)
	if err != nil {
		log.Fatal().Err(err).Msg("extraction failed")
	}

	source := "extracted"
	if res.FromCache {
		source = "served from cache"
	}
	fmt.Printf("%d units %s (run %s) -> %s\n", len(res.Units), source, res.Manifest.RunID, cfg.Results.Dir)
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

func runShow(cfg config.Config, log zerolog.Logger, unit int) {
	cache := store.NewCache(cfg.Results.Dir)
	units, man, err := cache.Load(store.Params{
		Channels:        cfg.Recording.Channels,
		Width:           cfg.Extract.Width,
		SnippetsPerUnit: cfg.Extract.Snippets,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("no readable result cache")
	}

	fmt.Printf("run %s from %s: %d units\n", man.RunID, man.CreatedAt.Format(time.RFC3339), len(units))
	for _, u := range units {
		if unit >= 0 && int32(unit) != u.UnitID {
			continue
		}
		fmt.Printf("unit %4d  peak channel %4d  snippets %3d  amplitude %8.1f\n",
			u.UnitID, u.PeakChannel, u.SnippetCount, peakAmplitude(u))
		if unit >= 0 {
			printWaveform(u)
		}
	}
}

func runNoise(cfg config.Config, log zerolog.Logger) {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Recording.Compressed {
		log.Fatal().Msg("noise profiling reads raw recordings only")
	}
	rec, err := recording.Open(cfg.Recording.Path, cfg.Recording.Channels)
	if err != nil {
		log.Fatal().Err(err).Msg("open recording")
	}
	defer rec.Close()

	prof, err := noise.Measure(rec, noise.Options{
		SampleRate: cfg.Recording.SampleRate,
		Seed:       cfg.Extract.Seed,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("measure noise")
	}

	stats := append([]noise.ChannelStats(nil), prof.Channels...)
	sort.Slice(stats, func(i, j int) bool { return stats[i].RMS > stats[j].RMS })
	top := 10
	if len(stats) < top {
		top = len(stats)
	}
	fmt.Printf("noisiest channel %d of %d\n", prof.Noisiest, len(prof.Channels))
	for _, s := range stats[:top] {
		fmt.Printf("channel %4d  rms %8.1f  sigma %8.1f\n", s.Channel, s.RMS, s.Sigma)
	}
	peak := 0
	for i := range prof.PSD {
		if prof.PSD[i] > prof.PSD[peak] {
			peak = i
		}
	}
	fmt.Printf("spectrum: %d bins to %.0f Hz, peak at %.0f Hz\n",
		len(prof.PSD), prof.Freqs[len(prof.Freqs)-1], prof.Freqs[peak])
}

func peakAmplitude(u waveform.UnitResult) float64 {
	pw := u.PeakWaveform()
	if pw == nil {
		return math.NaN()
	}
	m := 0.0
	for _, v := range pw {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

func printWaveform(u waveform.UnitResult) {
	pw := u.PeakWaveform()
	if pw == nil {
		fmt.Println("  no snippets were extracted for this unit")
		return
	}
	for i, v := range pw {
		fmt.Printf("%8.1f", v)
		if (i+1)%10 == 0 {
			fmt.Println()
		}
	}
	fmt.Println()
}

// loadSpikes reads a unit,sample CSV. A non-numeric first row is treated
// as a header and skipped.
func loadSpikes(path string) ([]spikes.Spike, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	r.Comment = '#'

	var events []spikes.Spike
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		unit, uerr := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 32)
		sample, serr := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if uerr != nil || serr != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: bad spike row %q", line, rec)
		}
		events = append(events, spikes.Spike{Unit: int32(unit), Sample: sample})
	}
	return events, nil
}

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  Extract waveforms:")
	fmt.Println("    bombcell -mode extract -spikes spikes.csv -recording rec.bin [-config bombcell.yaml] [-force] [-verbose]")
	fmt.Println("  Show cached results:")
	fmt.Println("    bombcell -mode show [-results dir] [-unit 42]")
	fmt.Println("  Noise profile:")
	fmt.Println("    bombcell -mode noise -recording rec.bin")
}
