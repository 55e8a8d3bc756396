// Package waveform accumulates per-unit voltage snippets and reduces them
// to a mean waveform and peak channel.
package waveform

import "math"

// SnippetSet is one unit's snippet tensor: a fixed number of slots, each a
// channel by time window. Slots start out as NaN and stay NaN when their
// window could not be read, so missing snippets never masquerade as zeros.
type SnippetSet struct {
	channels int
	width    int
	slots    [][][]float64
	filled   []bool
}

// NewSnippetSet allocates an all-NaN tensor with nslots slots.
func NewSnippetSet(channels, width, nslots int) *SnippetSet {
	s := &SnippetSet{
		channels: channels,
		width:    width,
		slots:    make([][][]float64, nslots),
		filled:   make([]bool, nslots),
	}
	for i := range s.slots {
		s.slots[i] = nanMatrix(channels, width)
	}
	return s
}

func nanMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for r := range m {
		m[r] = make([]float64, cols)
		for c := range m[r] {
			m[r][c] = math.NaN()
		}
	}
	return m
}

// Fill writes one successfully read window into slot.
func (s *SnippetSet) Fill(slot int, win [][]int16) {
	for c := 0; c < s.channels && c < len(win); c++ {
		for t := 0; t < s.width && t < len(win[c]); t++ {
			s.slots[slot][c][t] = float64(win[c][t])
		}
	}
	s.filled[slot] = true
}

// Filled reports whether slot holds a snippet.
func (s *SnippetSet) Filled(slot int) bool { return s.filled[slot] }

// FilledCount is the number of slots holding a snippet.
func (s *SnippetSet) FilledCount() int {
	n := 0
	for _, f := range s.filled {
		if f {
			n++
		}
	}
	return n
}

// Slots is the slot capacity of the tensor.
func (s *SnippetSet) Slots() int { return len(s.slots) }

// Channels is the channel dimension of each snippet.
func (s *SnippetSet) Channels() int { return s.channels }

// Width is the time dimension of each snippet.
func (s *SnippetSet) Width() int { return s.width }

// Snippet returns the channel by time matrix stored at slot. The backing
// arrays are shared, not copied.
func (s *SnippetSet) Snippet(slot int) [][]float64 { return s.slots[slot] }
