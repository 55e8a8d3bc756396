// Package spikes holds the sorted-spike table handed to the extraction
// engine and the per-unit index sampler.
package spikes

import "sort"

// Spike is one sorted event: the unit it was assigned to and the sample
// index it occurred at.
type Spike struct {
	Unit   int32
	Sample int64
}

// Train is one unit's spike sample indices in ascending order.
type Train struct {
	Unit    int32
	Samples []int64
}

// Group buckets events by unit and returns one train per unit, ordered by
// unit id, with each train's samples ascending.
func Group(events []Spike) []Train {
	byUnit := make(map[int32][]int64)
	for _, ev := range events {
		byUnit[ev.Unit] = append(byUnit[ev.Unit], ev.Sample)
	}
	trains := make([]Train, 0, len(byUnit))
	for unit, samples := range byUnit {
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		trains = append(trains, Train{Unit: unit, Samples: samples})
	}
	sort.Slice(trains, func(i, j int) bool { return trains[i].Unit < trains[j].Unit })
	return trains
}
