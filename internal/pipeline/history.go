package pipeline

// HistoryCapacity is the size of the sliding sample window
const HistoryCapacity = 50

// History is an immutable bounded window of the most recent samples
// Append returns a new value and never modifies the receiver.
type History struct {
	capacity int
	samples  []Sample
}

// NewHistory creates an empty window, capacity <= 0 selects HistoryCapacity
func NewHistory(capacity int) History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return History{capacity: capacity}
}

// Append returns a window with s added at the end and the oldest entries dropped
// so that the length stays within capacity
func (h History) Append(s Sample) History {
	capacity := h.capacity
	if capacity <= 0 {
		capacity = HistoryCapacity
	}

	drop := len(h.samples) + 1 - capacity
	if drop < 0 {
		drop = 0
	}

	kept := h.samples[drop:]
	next := make([]Sample, 0, len(kept)+1)
	next = append(next, kept...)
	next = append(next, s)

	return History{capacity: capacity, samples: next}
}

// Samples returns a copy of the window, oldest first
func (h History) Samples() []Sample {
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

func (h History) Len() int { return len(h.samples) }

func (h History) Capacity() int {
	if h.capacity <= 0 {
		return HistoryCapacity
	}
	return h.capacity
}
