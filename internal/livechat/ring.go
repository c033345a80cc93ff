package livechat

// DefaultBufferCapacity is the replay buffer size used when none is configured.
const DefaultBufferCapacity = 500

// RingBuffer keeps the most recent WireMessages in arrival order.
// It is not safe for concurrent use; the Broadcaster guards it with its own mutex.
type RingBuffer struct {
	items []WireMessage
	head  int // index of the oldest entry
	size  int
}

// NewRingBuffer creates a buffer holding at most capacity messages.
// A capacity below one falls back to DefaultBufferCapacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = DefaultBufferCapacity
	}
	return &RingBuffer{items: make([]WireMessage, capacity)}
}

// Append stores msg, evicting the oldest entry when the buffer is full.
func (r *RingBuffer) Append(msg WireMessage) {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.head+r.size)%capacity] = msg
		r.size++
		return
	}
	r.items[r.head] = msg
	r.head = (r.head + 1) % capacity
}

// Recent returns up to limit of the newest entries, oldest first.
func (r *RingBuffer) Recent(limit int) []WireMessage {
	if limit <= 0 || r.size == 0 {
		return []WireMessage{}
	}
	n := min(limit, r.size)
	out := make([]WireMessage, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.at(i))
	}
	return out
}

// RecentForStream is Recent restricted to entries whose StreamID equals streamID.
// It scans the whole buffer.
func (r *RingBuffer) RecentForStream(streamID string, limit int) []WireMessage {
	if limit <= 0 || r.size == 0 {
		return []WireMessage{}
	}
	// Walk newest to oldest so the scan stops once limit matches are found.
	picked := make([]WireMessage, 0, min(limit, r.size))
	for i := r.size - 1; i >= 0 && len(picked) < limit; i-- {
		if msg := r.at(i); msg.StreamID == streamID {
			picked = append(picked, msg)
		}
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}

// Clear drops every entry.
func (r *RingBuffer) Clear() {
	clear(r.items)
	r.head = 0
	r.size = 0
}

// Len reports the number of stored entries.
func (r *RingBuffer) Len() int { return r.size }

// Cap reports the maximum number of entries.
func (r *RingBuffer) Cap() int { return len(r.items) }

// at returns the i-th oldest entry.
func (r *RingBuffer) at(i int) WireMessage {
	return r.items[(r.head+i)%len(r.items)]
}
