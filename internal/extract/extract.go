// Package extract runs the waveform extraction pipeline: sample spike
// indices per unit, read each window from the recording, reduce every
// unit's snippets to a mean waveform and peak channel, and persist the
// result set so the next run can skip the recording entirely.
package extract

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/lachioma/bombcell/internal/config"
	"github.com/lachioma/bombcell/internal/recording"
	"github.com/lachioma/bombcell/internal/spikes"
	"github.com/lachioma/bombcell/internal/store"
	"github.com/lachioma/bombcell/internal/waveform"
)

// Result is one extraction run's output. Units are ordered by unit id.
type Result struct {
	Units     []waveform.UnitResult
	Warnings  []string
	FromCache bool
	Manifest  store.Manifest
}

// Engine drives extraction for one recording under one immutable
// configuration.
type Engine struct {
	cfg config.Config
	log zerolog.Logger
	dec recording.ChunkDecoder
}

func New(cfg config.Config, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: log.With().Str("component", "extract").Logger()}
}

// UseDecoder swaps in a chunk decoder in place of the external command
// built from the configuration, for callers that decode in process.
func (e *Engine) UseDecoder(dec recording.ChunkDecoder) { e.dec = dec }

// unitPlan is one unit's extraction work: its deduplicated sampled spike
// indices, ascending.
type unitPlan struct {
	unit    int32
	spikes  int
	indices []int64
}

// Run extracts waveforms for every unit present in events. A valid cached
// result set is returned as-is, without opening the recording, unless the
// configuration forces re-extraction.
func (e *Engine) Run(events []spikes.Spike) (Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid configuration: %w", err)
	}

	params := store.Params{
		Channels:        e.cfg.Recording.Channels,
		Width:           e.cfg.Extract.Width,
		SnippetsPerUnit: e.cfg.Extract.Snippets,
	}
	cache := store.NewCache(e.cfg.Results.Dir)

	if e.cfg.Extract.Force {
		if err := cache.Clear(); err != nil {
			return Result{}, fmt.Errorf("clear cache: %w", err)
		}
	} else {
		units, man, err := cache.Load(params)
		switch {
		case err == nil:
			e.log.Info().Str("run_id", man.RunID).Int("units", len(units)).
				Msg("reusing cached waveforms")
			return Result{Units: units, FromCache: true, Manifest: man}, nil
		case errors.Is(err, store.ErrNoCache):
		default:
			e.log.Warn().Err(err).Msg("cache unusable, re-extracting")
		}
	}

	plans := e.plan(events)
	e.log.Info().Int("units", len(plans)).Bool("compressed", e.cfg.Recording.Compressed).
		Msg("extracting waveforms")

	var res Result
	var err error
	if e.cfg.Recording.Compressed {
		res, err = e.runBatched(plans)
	} else {
		res, err = e.runDirect(plans)
	}
	if err != nil {
		return Result{}, err
	}

	man, err := cache.Save(res.Units, params)
	if err != nil {
		return Result{}, fmt.Errorf("persist results: %w", err)
	}
	res.Manifest = man
	e.log.Info().Str("run_id", man.RunID).Int("units", len(res.Units)).
		Int("warnings", len(res.Warnings)).Msg("extraction complete")
	return res, nil
}

// plan samples every unit's spike train up front, on one seeded source, so
// the drawn indices do not depend on worker scheduling.
func (e *Engine) plan(events []spikes.Spike) []unitPlan {
	trains := spikes.Group(events)
	sampler := spikes.NewSampler(e.cfg.Extract.Seed)
	plans := make([]unitPlan, len(trains))
	for i, tr := range trains {
		draws := sampler.Draw(tr.Samples, e.cfg.Extract.Snippets)
		plans[i] = unitPlan{
			unit:    tr.Unit,
			spikes:  len(tr.Samples),
			indices: spikes.Unique(draws),
		}
	}
	return plans
}

func (e *Engine) halfWidth() int64 { return int64(e.cfg.Extract.Width / 2) }

func (e *Engine) progress() *mpb.Progress {
	opts := []mpb.ContainerOption{mpb.WithWidth(64)}
	if !e.cfg.Verbose {
		opts = append(opts, mpb.WithOutput(io.Discard))
	}
	return mpb.New(opts...)
}

func newBar(p *mpb.Progress, label string, total int) *mpb.Bar {
	return p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(label),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
}

// openArchive opens the snippet archive when one was asked for.
func (e *Engine) openArchive() (*store.Archive, error) {
	if !e.cfg.Results.Archive {
		return nil, nil
	}
	return store.OpenArchive(filepath.Join(e.cfg.Results.Dir, "snippets"))
}

// archiveBatch buffers raw snippet writes behind one flush.
type archiveBatch struct {
	b *store.Batch
}

func newArchiveBatch(a *store.Archive) *archiveBatch {
	return &archiveBatch{b: a.NewBatch()}
}

func (ab *archiveBatch) put(unit int32, raw [][][]int16) error {
	for slot, win := range raw {
		if win == nil {
			continue
		}
		if err := ab.b.Put(unit, slot, win); err != nil {
			return err
		}
	}
	return nil
}

func (ab *archiveBatch) putOne(unit int32, slot int, win [][]int16) error {
	return ab.b.Put(unit, slot, win)
}

func (ab *archiveBatch) flush() error { return ab.b.Flush() }
func (ab *archiveBatch) cancel()      { ab.b.Cancel() }
