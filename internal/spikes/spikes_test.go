package spikes_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lachioma/bombcell/internal/spikes"
)

func TestGroup(t *testing.T) {
	events := []spikes.Spike{
		{Unit: 7, Sample: 900},
		{Unit: 2, Sample: 100},
		{Unit: 7, Sample: 300},
		{Unit: 2, Sample: 50},
		{Unit: 5, Sample: 400},
	}

	trains := spikes.Group(events)
	require.Len(t, trains, 3)
	assert.Equal(t, int32(2), trains[0].Unit)
	assert.Equal(t, []int64{50, 100}, trains[0].Samples)
	assert.Equal(t, int32(5), trains[1].Unit)
	assert.Equal(t, []int64{400}, trains[1].Samples)
	assert.Equal(t, int32(7), trains[2].Unit)
	assert.Equal(t, []int64{300, 900}, trains[2].Samples)
}

func TestDrawReturnsSortedRequestedCount(t *testing.T) {
	src := []int64{10, 20, 30, 40, 50}
	s := spikes.NewSampler(1)

	picks := s.Draw(src, 12)
	require.Len(t, picks, 12)
	assert.True(t, sort.SliceIsSorted(picks, func(i, j int) bool { return picks[i] < picks[j] }))
	for _, p := range picks {
		assert.Contains(t, src, p)
	}
}

func TestDrawIsDeterministicForSeed(t *testing.T) {
	src := []int64{3, 1, 4, 1, 5, 9, 2, 6}
	a := spikes.NewSampler(42).Draw(src, 20)
	b := spikes.NewSampler(42).Draw(src, 20)
	assert.Equal(t, a, b)
}

func TestDrawEmpty(t *testing.T) {
	s := spikes.NewSampler(1)
	assert.Nil(t, s.Draw(nil, 10))
	assert.Nil(t, s.Draw([]int64{5}, 0))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 3}, spikes.Unique([]int64{1, 1, 2, 3, 3, 3}))
	assert.Equal(t, []int64{9}, spikes.Unique([]int64{9, 9, 9}))
	assert.Nil(t, spikes.Unique(nil))
}

// A unit with fewer spikes than requested draws repeats; after dedup the
// read count never exceeds the distinct spike count.
func TestUndersizedUnitDedupesBelowRequest(t *testing.T) {
	src := []int64{100, 200, 300}
	s := spikes.NewSampler(7)

	picks := s.Draw(src, 100)
	require.Len(t, picks, 100)
	uniq := spikes.Unique(picks)
	assert.LessOrEqual(t, len(uniq), len(src))
	assert.Greater(t, len(picks), len(uniq), "100 draws from 3 spikes must repeat")
}

func TestLargeUnitCappedAtRequest(t *testing.T) {
	src := make([]int64, 150)
	for i := range src {
		src[i] = int64(i * 30)
	}
	s := spikes.NewSampler(11)

	picks := s.Draw(src, 100)
	require.Len(t, picks, 100)
	uniq := spikes.Unique(picks)
	assert.LessOrEqual(t, len(uniq), 100)
}
