package extract

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/lachioma/bombcell/internal/recording"
	"github.com/lachioma/bombcell/internal/waveform"
)

type job struct {
	idx  int
	plan unitPlan
}

type outcome struct {
	idx     int
	res     waveform.UnitResult
	skipped int
	raw     [][][]int16
	err     error
}

// runDirect extracts from a plain raw recording. Units are independent, so
// a worker pool shares one read-only handle and each worker fills its own
// unit's tensor; results land in a slice partitioned by unit index.
func (e *Engine) runDirect(plans []unitPlan) (Result, error) {
	rec, err := recording.Open(e.cfg.Recording.Path, e.cfg.Recording.Channels)
	if err != nil {
		return Result{}, err
	}
	defer rec.Close()

	arch, err := e.openArchive()
	if err != nil {
		return Result{}, err
	}
	if arch != nil {
		defer arch.Close()
	}

	p := e.progress()
	bar := newBar(p, "Extracting: ", len(plans))

	workers := e.cfg.Extract.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 2 {
			workers = 2
		}
	}

	jobs := make(chan job, len(plans))
	outs := make(chan outcome, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outs <- e.extractUnit(rec, j, arch != nil)
			}
		}()
	}
	for i, pl := range plans {
		jobs <- job{idx: i, plan: pl}
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(outs)
	}()

	res := Result{Units: make([]waveform.UnitResult, len(plans))}
	skips := make([]int, len(plans))
	var batch *archiveBatch
	if arch != nil {
		batch = newArchiveBatch(arch)
		defer batch.cancel()
	}

	var firstErr error
	for o := range outs {
		bar.Increment()
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		res.Units[o.idx] = o.res
		skips[o.idx] = o.skipped
		if batch != nil {
			if err := batch.put(o.res.UnitID, o.raw); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("archive snippets: %w", err)
			}
		}
	}
	p.Wait()
	if firstErr != nil {
		return Result{}, firstErr
	}

	for i, pl := range plans {
		if skips[i] > 0 {
			e.log.Warn().Int("unit", int(pl.unit)).Int("skipped", skips[i]).
				Int("sampled", len(pl.indices)).Msg("windows out of bounds")
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("unit %d: %d of %d sampled windows out of bounds", pl.unit, skips[i], len(pl.indices)))
		}
	}

	if batch != nil {
		if err := batch.flush(); err != nil {
			return Result{}, fmt.Errorf("flush snippet archive: %w", err)
		}
	}
	return res, nil
}

// extractUnit reads one unit's sampled windows into a fresh tensor and
// reduces it. Out-of-bounds windows leave their slot missing; any other
// read failure aborts the run.
func (e *Engine) extractUnit(rd recording.WindowReader, j job, keepRaw bool) outcome {
	width := e.cfg.Extract.Width
	half := e.halfWidth()
	set := waveform.NewSnippetSet(rd.Layout().SignalChannels(), width, e.cfg.Extract.Snippets)

	out := outcome{idx: j.idx}
	if keepRaw {
		out.raw = make([][][]int16, e.cfg.Extract.Snippets)
	}
	for slot, sample := range j.plan.indices {
		win, err := rd.ReadWindow(sample-half, width)
		if errors.Is(err, recording.ErrOutOfBounds) {
			out.skipped++
			continue
		}
		if err != nil {
			out.err = err
			return out
		}
		set.Fill(slot, win)
		if keepRaw {
			out.raw[slot] = win
		}
	}
	out.res = waveform.Aggregate(j.plan.unit, set, e.cfg.Extract.Keep)
	return out
}
