// Package recording provides random access to raw extracellular recording
// files: flat binaries of interleaved little-endian int16 samples, one value
// per channel per frame. It exposes fixed-width multi-channel windows keyed
// by sample index, for both plain files and compressed recordings served
// through an external chunk decoder.
package recording

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const (
	// SampleWidth is the byte width of one sample value (signed 16-bit).
	SampleWidth = 2

	// SyncChannelCount is the channel count of recordings that carry a
	// trailing sync channel. When a recording declares exactly this many
	// channels the last one is excluded from every returned window.
	SyncChannelCount = 385
)

var (
	// ErrOutOfBounds reports a window that does not lie fully inside the
	// recording. The caller is expected to skip the snippet.
	ErrOutOfBounds = errors.New("recording: window out of bounds")

	// ErrChannelCountMismatch reports a declared channel count that does
	// not evenly divide the recording file size.
	ErrChannelCountMismatch = errors.New("recording: channel count does not divide file size")
)

// Layout describes the fixed geometry of one recording file.
type Layout struct {
	// Channels is the number of values per frame as stored on disk,
	// including any sync channel.
	Channels int

	// TotalSamples is the number of frames in the file.
	TotalSamples int64

	// FileSize is the file length in bytes.
	FileSize int64
}

// LayoutFor derives the layout from a file size and a declared channel
// count. It fails with ErrChannelCountMismatch when the frame size does not
// evenly divide the file, so a bad channel count surfaces before any read.
func LayoutFor(fileSize int64, channels int) (Layout, error) {
	if channels <= 0 {
		return Layout{}, fmt.Errorf("%w: %d channels", ErrChannelCountMismatch, channels)
	}
	frame := int64(channels) * SampleWidth
	if fileSize%frame != 0 {
		return Layout{}, fmt.Errorf("%w: %d bytes / %d channels", ErrChannelCountMismatch, fileSize, channels)
	}
	return Layout{Channels: channels, TotalSamples: fileSize / frame, FileSize: fileSize}, nil
}

// LayoutForSamples builds a layout from a sample count known out of band,
// as with compressed recordings whose on-disk size says nothing about the
// decoded length.
func LayoutForSamples(samples int64, channels int) (Layout, error) {
	if channels <= 0 {
		return Layout{}, fmt.Errorf("%w: %d channels", ErrChannelCountMismatch, channels)
	}
	if samples <= 0 {
		return Layout{}, fmt.Errorf("total samples must be positive, got %d", samples)
	}
	return Layout{
		Channels:     channels,
		TotalSamples: samples,
		FileSize:     samples * int64(channels) * SampleWidth,
	}, nil
}

// SignalChannels is the number of channels carried in returned windows: all
// of them, except that the trailing sync channel of a SyncChannelCount
// recording is dropped.
func (l Layout) SignalChannels() int {
	if l.Channels == SyncChannelCount {
		return l.Channels - 1
	}
	return l.Channels
}

// FrameBytes is the byte width of one frame across all stored channels.
func (l Layout) FrameBytes() int64 {
	return int64(l.Channels) * SampleWidth
}

// Contains reports whether the window [start, start+width) lies fully
// inside [0, TotalSamples).
func (l Layout) Contains(start int64, width int) bool {
	return start >= 0 && start+int64(width) <= l.TotalSamples
}

// WindowReader serves fixed-width windows of samples. Implementations are
// Recording for plain files and BatchedReader for compressed recordings.
type WindowReader interface {
	// ReadWindow returns width samples per signal channel starting at
	// startSample, channel-major. A window outside the recording fails
	// with ErrOutOfBounds.
	ReadWindow(startSample int64, width int) ([][]int16, error)

	// Layout returns the recording geometry.
	Layout() Layout
}

// Recording is a plain raw recording file opened for random window reads.
// All reads go through ReadAt, so one Recording may be shared by concurrent
// readers without any seek state to corrupt.
type Recording struct {
	f   *os.File
	lay Layout
}

// Open opens a raw recording and validates its geometry against the
// declared channel count.
func Open(path string, channels int) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat recording: %w", err)
	}
	lay, err := LayoutFor(fi.Size(), channels)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Recording{f: f, lay: lay}, nil
}

// Layout returns the recording geometry.
func (r *Recording) Layout() Layout { return r.lay }

// Close releases the underlying file handle.
func (r *Recording) Close() error { return r.f.Close() }

// ReadWindow reads the window [startSample, startSample+width) across all
// signal channels. The byte offset is computed in 64-bit arithmetic; a
// multi-hour, few-hundred-channel recording overflows 32 bits long before
// it overflows this.
func (r *Recording) ReadWindow(startSample int64, width int) ([][]int16, error) {
	if !r.lay.Contains(startSample, width) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d samples",
			ErrOutOfBounds, startSample, startSample+int64(width), r.lay.TotalSamples)
	}
	buf := make([]byte, int64(width)*r.lay.FrameBytes())
	if _, err := r.f.ReadAt(buf, startSample*r.lay.FrameBytes()); err != nil {
		return nil, fmt.Errorf("read window at sample %d: %w", startSample, err)
	}
	return deinterleave(buf, r.lay, width), nil
}

// deinterleave unpacks frame-major s16le bytes into per-channel sample
// rows, dropping the sync channel when the layout carries one.
func deinterleave(buf []byte, lay Layout, width int) [][]int16 {
	chans := lay.SignalChannels()
	win := make([][]int16, chans)
	for c := range win {
		win[c] = make([]int16, width)
	}
	for t := 0; t < width; t++ {
		base := t * lay.Channels * SampleWidth
		for c := 0; c < chans; c++ {
			win[c][t] = int16(binary.LittleEndian.Uint16(buf[base+c*SampleWidth:]))
		}
	}
	return win
}
