package pulse

import "time"

// HeatSample is a timestamped smoothed heat reading.
type HeatSample struct {
	At   time.Time
	Heat float64
}

// heatHistory is a fixed-capacity ring buffer of heat samples. Appends
// evict the oldest sample on overflow; stored samples are never mutated.
type heatHistory struct {
	samples []HeatSample
	head    int // index of the oldest sample
	size    int
}

func newHeatHistory(capacity int) *heatHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &heatHistory{samples: make([]HeatSample, capacity)}
}

func (h *heatHistory) Append(s HeatSample) {
	if h.size < len(h.samples) {
		h.samples[(h.head+h.size)%len(h.samples)] = s
		h.size++
		return
	}
	// Full: overwrite the oldest and advance the head
	h.samples[h.head] = s
	h.head = (h.head + 1) % len(h.samples)
}

func (h *heatHistory) Len() int {
	return h.size
}

// Samples returns a copy of the buffered samples, oldest first.
func (h *heatHistory) Samples() []HeatSample {
	out := make([]HeatSample, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.samples[(h.head+i)%len(h.samples)]
	}
	return out
}

// Latest returns the most recent sample, or false if the buffer is empty.
func (h *heatHistory) Latest() (HeatSample, bool) {
	if h.size == 0 {
		return HeatSample{}, false
	}
	return h.samples[(h.head+h.size-1)%len(h.samples)], true
}
