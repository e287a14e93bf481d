package reconcile

import (
	"slices"
	"time"
)

// Stats summarizes the values of the base view.
type Stats struct {
	Count      int       `json:"count"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Mean       float64   `json:"mean"`
	Median     float64   `json:"median"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// computeStats returns false for an empty input. The median of an even
// count is the upper middle value.
func computeStats(values []float64, lastUpdate time.Time) (Stats, bool) {
	if len(values) == 0 {
		return Stats{}, false
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return Stats{
		Count:      len(sorted),
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / float64(len(sorted)),
		Median:     sorted[len(sorted)/2],
		LastUpdate: lastUpdate,
	}, true
}
