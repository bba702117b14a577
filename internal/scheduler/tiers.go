package scheduler

import (
	"math"
	"sort"
)

// DistanceBand assigns an update interval to entities closer than MaxDistance.
type DistanceBand struct {
	MaxDistance float64
	Interval    uint32
}

// DefaultDistanceBands returns the near, mid, far and very-far buckets.
func DefaultDistanceBands() []DistanceBand {
	return []DistanceBand{
		{MaxDistance: 50, Interval: 2},
		{MaxDistance: 100, Interval: 4},
		{MaxDistance: 200, Interval: 8},
		{MaxDistance: math.Inf(1), Interval: 16},
	}
}

// bandSet holds distance bands with squared limits so classification needs no
// square root.
type bandSet struct {
	limitsSq  []float64
	intervals []uint32
}

func newBandSet(bands []DistanceBand) bandSet {
	if len(bands) == 0 {
		bands = DefaultDistanceBands()
	}
	sorted := make([]DistanceBand, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MaxDistance < sorted[j].MaxDistance })

	set := bandSet{
		limitsSq:  make([]float64, 0, len(sorted)+1),
		intervals: make([]uint32, 0, len(sorted)+1),
	}
	for _, band := range sorted {
		interval := band.Interval
		if interval == 0 {
			interval = 1
		}
		limit := band.MaxDistance
		if limit < 0 {
			limit = 0
		}
		set.limitsSq = append(set.limitsSq, limit*limit)
		set.intervals = append(set.intervals, interval)
	}
	//1.- Guarantee a catch-all bucket so every distance classifies.
	if !math.IsInf(sorted[len(sorted)-1].MaxDistance, 1) {
		set.limitsSq = append(set.limitsSq, math.Inf(1))
		set.intervals = append(set.intervals, set.intervals[len(set.intervals)-1])
	}
	return set
}

// interval returns the update interval for a squared distance.
func (b bandSet) interval(distanceSq float64) uint32 {
	for i, limit := range b.limitsSq {
		if distanceSq < limit {
			return b.intervals[i]
		}
	}
	return b.intervals[len(b.intervals)-1]
}

// LowFPSMultiplier stretches entity intervals when the frame rate is low. The
// narrowest band is tested first so both branches are reachable.
func LowFPSMultiplier(fps float64) uint32 {
	switch {
	case fps < 20:
		return 3
	case fps < 30:
		return 2
	default:
		return 1
	}
}
