package extract

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lachioma/bombcell/internal/recording"
	"github.com/lachioma/bombcell/internal/waveform"
)

// runBatched extracts from a compressed recording through the chunk
// decoder. All sampled windows are swept in ascending start order, so each
// one-second chunk is decoded at most once and chunks no window touches
// are never decoded at all.
func (e *Engine) runBatched(plans []unitPlan) (Result, error) {
	lay, err := recording.LayoutForSamples(e.cfg.Recording.Samples, e.cfg.Recording.Channels)
	if err != nil {
		return Result{}, err
	}

	dec := e.dec
	if dec == nil {
		dec = &recording.CommandDecoder{
			Command: e.cfg.Recording.Decoder,
			Path:    e.cfg.Recording.Path,
		}
	}
	rd := recording.NewBatchedReader(dec, lay, int(e.cfg.Recording.SampleRate))

	arch, err := e.openArchive()
	if err != nil {
		return Result{}, err
	}
	if arch != nil {
		defer arch.Close()
	}
	var batch *archiveBatch
	if arch != nil {
		batch = newArchiveBatch(arch)
		defer batch.cancel()
	}

	width := e.cfg.Extract.Width
	half := e.halfWidth()

	type item struct {
		planIdx int
		slot    int
		start   int64
	}
	var items []item
	for i, pl := range plans {
		for slot, sample := range pl.indices {
			items = append(items, item{planIdx: i, slot: slot, start: sample - half})
		}
	}
	sort.Slice(items, func(a, b int) bool { return items[a].start < items[b].start })

	sets := make([]*waveform.SnippetSet, len(plans))
	for i := range sets {
		sets[i] = waveform.NewSnippetSet(lay.SignalChannels(), width, e.cfg.Extract.Snippets)
	}

	p := e.progress()
	bar := newBar(p, "Decoding: ", len(items))

	oob := make([]int, len(plans))
	straddled := make([]int, len(plans))
	chunkMisses := make(map[int64]int)

	for _, it := range items {
		bar.Increment()
		win, err := rd.ReadWindow(it.start, width)
		switch {
		case err == nil:
			sets[it.planIdx].Fill(it.slot, win)
			if batch != nil {
				if err := batch.putOne(plans[it.planIdx].unit, it.slot, win); err != nil {
					bar.Abort(true)
					p.Wait()
					return Result{}, fmt.Errorf("archive snippets: %w", err)
				}
			}
		case errors.Is(err, recording.ErrOutOfBounds):
			oob[it.planIdx]++
		case errors.Is(err, recording.ErrChunkStraddle):
			straddled[it.planIdx]++
		case errors.Is(err, recording.ErrDecodeFailed):
			chunkMisses[rd.ChunkOf(it.start)]++
		default:
			bar.Abort(true)
			p.Wait()
			return Result{}, err
		}
	}
	p.Wait()
	e.log.Debug().Int("chunks", rd.Decodes()).Int("windows", len(items)).Msg("decode sweep done")

	res := Result{Units: make([]waveform.UnitResult, len(plans))}
	for i, pl := range plans {
		res.Units[i] = waveform.Aggregate(pl.unit, sets[i], e.cfg.Extract.Keep)
		if oob[i] > 0 {
			e.log.Warn().Int("unit", int(pl.unit)).Int("skipped", oob[i]).
				Int("sampled", len(pl.indices)).Msg("windows out of bounds")
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("unit %d: %d of %d sampled windows out of bounds", pl.unit, oob[i], len(pl.indices)))
		}
		if straddled[i] > 0 {
			e.log.Warn().Int("unit", int(pl.unit)).Int("skipped", straddled[i]).
				Msg("windows straddled decode chunks")
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("unit %d: %d windows straddled decode chunks", pl.unit, straddled[i]))
		}
	}

	chunks := make([]int64, 0, len(chunkMisses))
	for c := range chunkMisses {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(a, b int) bool { return chunks[a] < chunks[b] })
	for _, c := range chunks {
		e.log.Warn().Int64("chunk", c).Int("windows", chunkMisses[c]).Msg("chunk decode failed")
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("chunk %d: decode failed, %d windows missing", c, chunkMisses[c]))
	}

	if batch != nil {
		if err := batch.flush(); err != nil {
			return Result{}, fmt.Errorf("flush snippet archive: %w", err)
		}
	}
	return res, nil
}
