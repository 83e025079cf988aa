package ensemble

import (
	"math"

	"github.com/montanaflynn/stats"
)

// DefaultObservationWindow bounds per-source history length
const DefaultObservationWindow = 50

// DefaultErrorHistoryCap bounds the rolling failure-magnitude history
const DefaultErrorHistoryCap = 100

// ObservationWindow keeps the most recent scalar magnitudes for one source
type ObservationWindow struct {
	cap    int
	values []float64
}

// NewObservationWindow builds a bounded window; cap ≤ 0 falls back to the default
func NewObservationWindow(cap int) *ObservationWindow {
	if cap <= 0 {
		cap = DefaultObservationWindow
	}
	return &ObservationWindow{cap: cap, values: make([]float64, 0, cap)}
}

// Push appends a magnitude, dropping the oldest when the window is full
func (w *ObservationWindow) Push(v float64) {
	if len(w.values) >= w.cap {
		w.values = w.values[1:]
	}
	w.values = append(w.values, v)
}

// Len returns the number of stored magnitudes
func (w *ObservationWindow) Len() int {
	return len(w.values)
}

// Values returns a copy of the stored magnitudes, oldest first
func (w *ObservationWindow) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

// Variance returns the population variance of the window, zero when fewer than
// two samples are available
func (w *ObservationWindow) Variance() float64 {
	if len(w.values) < 2 {
		return 0
	}
	v, err := stats.Variance(w.values)
	if err != nil {
		return 0
	}
	return v
}

// ErrorHistory is the rolling record of past failure magnitudes used for the
// noise gate
type ErrorHistory struct {
	cap     int
	samples []float64
}

// NewErrorHistory builds a bounded history; cap ≤ 0 falls back to the default
func NewErrorHistory(cap int) *ErrorHistory {
	if cap <= 0 {
		cap = DefaultErrorHistoryCap
	}
	return &ErrorHistory{cap: cap, samples: make([]float64, 0, cap)}
}

// Push appends a failure magnitude, dropping the oldest when full
func (h *ErrorHistory) Push(magnitude float64) {
	if len(h.samples) >= h.cap {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, magnitude)
}

// Len returns the number of recorded magnitudes
func (h *ErrorHistory) Len() int {
	return len(h.samples)
}

// Samples returns a copy of the recorded magnitudes, oldest first
func (h *ErrorHistory) Samples() []float64 {
	out := make([]float64, len(h.samples))
	copy(out, h.samples)
	return out
}

// MeanStdDev returns the mean and population standard deviation of the history
func (h *ErrorHistory) MeanStdDev() (mean, stddev float64) {
	if len(h.samples) == 0 {
		return 0, 0
	}
	mean, err := stats.Mean(h.samples)
	if err != nil {
		return 0, 0
	}
	stddev, err = stats.StandardDeviation(h.samples)
	if err != nil {
		return mean, 0
	}
	return mean, stddev
}

// ZScore converts a new magnitude into standard deviations above the historical
// mean. A degenerate (zero-spread) history maps any differing magnitude to +Inf
// so it is never mistaken for noise.
func (h *ErrorHistory) ZScore(magnitude float64) float64 {
	mean, stddev := h.MeanStdDev()
	if stddev < 1e-12 {
		if magnitude == mean {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(magnitude-mean) / stddev
}
