package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

var (
	// ErrDecodeFailed reports an external decoder failure for one chunk.
	// Windows inside a failed chunk stay missing; the run continues.
	ErrDecodeFailed = errors.New("recording: chunk decode failed")

	// ErrChunkStraddle reports a window that crosses a chunk boundary.
	// The compressed path only serves windows fully contained in a single
	// decoded chunk; a straddling window stays missing even when both of
	// its chunks decode cleanly.
	ErrChunkStraddle = errors.New("recording: window crosses chunk boundary")
)

// ChunkDecoder reconstructs raw sample bytes for compressed recordings, one
// fixed-duration chunk at a time. The engine never implements compression
// itself; it only orchestrates calls to a decoder and tolerates per-chunk
// failures.
type ChunkDecoder interface {
	// DecodeChunk returns frame-major s16le bytes for the sample range
	// [startSample, startSample+sampleCount).
	DecodeChunk(startSample int64, sampleCount int) ([]byte, error)
}

// CommandDecoder shells out to an external decoder binary. The command is
// invoked as
//
//	<command> <path> <startSample> <sampleCount>
//
// and must write the decoded frame-major s16le samples to stdout.
type CommandDecoder struct {
	// Command is the decoder executable.
	Command string

	// Path is the compressed recording file handed to the decoder.
	Path string

	// Timeout bounds one chunk decode. Zero means a minute.
	Timeout time.Duration
}

func (d *CommandDecoder) DecodeChunk(startSample int64, sampleCount int) ([]byte, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Command, d.Path,
		strconv.FormatInt(startSample, 10), strconv.Itoa(sampleCount))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &bytes.Buffer{}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Command, err)
	}
	return out.Bytes(), nil
}

// BatchedReader adapts a ChunkDecoder to the WindowReader interface. It
// keeps the most recently decoded chunk in memory, so a caller that reads
// windows in ascending sample order decodes every needed chunk exactly once
// and never decodes a chunk no window touches. Decode outcomes, including
// failures, are memoized per chunk.
type BatchedReader struct {
	dec          ChunkDecoder
	lay          Layout
	chunkSamples int

	curChunk  int64
	curStart  int64
	curBuf    []byte
	curErr    error
	curLoaded bool

	decodes int
}

// NewBatchedReader wraps dec for a recording with the given layout, decoding
// in chunks of chunkSamples frames (one second of samples).
func NewBatchedReader(dec ChunkDecoder, lay Layout, chunkSamples int) *BatchedReader {
	return &BatchedReader{dec: dec, lay: lay, chunkSamples: chunkSamples, curChunk: -1}
}

// Layout returns the recording geometry.
func (b *BatchedReader) Layout() Layout { return b.lay }

// Decodes returns how many chunk decodes were attempted.
func (b *BatchedReader) Decodes() int { return b.decodes }

// ChunkOf returns the chunk index containing the given sample.
func (b *BatchedReader) ChunkOf(sample int64) int64 {
	return sample / int64(b.chunkSamples)
}

// ReadWindow serves a window from the decoded chunk containing it. Windows
// outside the recording fail with ErrOutOfBounds, windows spanning two
// chunks with ErrChunkStraddle, and windows of an undecodable chunk with an
// error wrapping ErrDecodeFailed.
func (b *BatchedReader) ReadWindow(startSample int64, width int) ([][]int16, error) {
	if !b.lay.Contains(startSample, width) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d samples",
			ErrOutOfBounds, startSample, startSample+int64(width), b.lay.TotalSamples)
	}
	chunk := b.ChunkOf(startSample)
	if b.ChunkOf(startSample+int64(width)-1) != chunk {
		return nil, fmt.Errorf("%w: window at sample %d", ErrChunkStraddle, startSample)
	}
	if !b.curLoaded || b.curChunk != chunk {
		b.load(chunk)
	}
	if b.curErr != nil {
		return nil, b.curErr
	}
	rel := (startSample - b.curStart) * b.lay.FrameBytes()
	return deinterleave(b.curBuf[rel:rel+int64(width)*b.lay.FrameBytes()], b.lay, width), nil
}

func (b *BatchedReader) load(chunk int64) {
	start := chunk * int64(b.chunkSamples)
	count := b.chunkSamples
	if rest := b.lay.TotalSamples - start; rest < int64(count) {
		count = int(rest)
	}
	b.curChunk, b.curStart, b.curBuf, b.curErr, b.curLoaded = chunk, start, nil, nil, true
	b.decodes++

	buf, err := b.dec.DecodeChunk(start, count)
	if err != nil {
		b.curErr = fmt.Errorf("%w: chunk %d: %v", ErrDecodeFailed, chunk, err)
		return
	}
	if want := int64(count) * b.lay.FrameBytes(); int64(len(buf)) != want {
		b.curErr = fmt.Errorf("%w: chunk %d: got %d bytes, want %d",
			ErrDecodeFailed, chunk, len(buf), want)
		return
	}
	b.curBuf = buf
}
