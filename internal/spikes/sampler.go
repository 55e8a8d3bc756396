package spikes

import (
	"math/rand"
	"sort"
	"time"
)

// Sampler draws spike indices for snippet extraction.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler seeds a sampler. A zero seed falls back to the wall clock, so
// repeated runs differ unless the caller pins the seed.
func NewSampler(seed int64) *Sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Draw picks n indices from samples with replacement and returns them
// sorted ascending. Units with fewer than n spikes yield repeated picks;
// collapsing those with Unique leaves such units with fewer snippets than
// requested.
func (s *Sampler) Draw(samples []int64, n int) []int64 {
	if len(samples) == 0 || n <= 0 {
		return nil
	}
	picks := make([]int64, n)
	for i := range picks {
		picks[i] = samples[s.rng.Intn(len(samples))]
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i] < picks[j] })
	return picks
}

// Unique collapses runs of equal values in a sorted list, in place, so a
// spike drawn twice costs one read. Returns the shortened slice.
func Unique(sorted []int64) []int64 {
	if len(sorted) == 0 {
		return nil
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
