// Package buffer keeps a bounded history of raw protocol frames for debugging.
package buffer

import (
	"sync"
	"time"
)

// Direction tells which side produced a frame.
type Direction string

const (
	// Inbound frames come from the agent.
	Inbound Direction = "o"
	// Outbound frames are sent by the client.
	Outbound Direction = "i"
)

// Frame is one raw frame and when it crossed the wire.
type Frame struct {
	Time      time.Time `json:"time"`
	Direction Direction `json:"direction"`
	Data      string    `json:"data"`
}

// FrameRing is a thread-safe circular buffer holding the most recent frames.
// When full, the oldest frame is overwritten.
type FrameRing struct {
	frames   []Frame
	start    int
	count    int
	capacity int
	mu       sync.RWMutex
}

// NewFrameRing creates a FrameRing holding up to capacity frames.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewFrameRing(capacity int) *FrameRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameRing{
		frames:   make([]Frame, capacity),
		capacity: capacity,
	}
}

// Push records a frame, discarding the oldest one if the ring is full.
func (r *FrameRing) Push(dir Direction, data []byte) {
	f := Frame{Time: time.Now(), Direction: dir, Data: string(data)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < r.capacity {
		r.frames[(r.start+r.count)%r.capacity] = f
		r.count++
		return
	}
	r.frames[r.start] = f
	r.start = (r.start + 1) % r.capacity
}

// Snapshot returns the buffered frames oldest first.
// The returned slice is a copy and safe to use without holding the lock.
func (r *FrameRing) Snapshot() []Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}
	out := make([]Frame, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.frames[(r.start+i)%r.capacity]
	}
	return out
}

// Last returns up to n most recent frames oldest first.
func (r *FrameRing) Last(n int) []Frame {
	all := r.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Clear removes all frames.
func (r *FrameRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames = make([]Frame, r.capacity)
	r.start = 0
	r.count = 0
}

// Len returns the number of buffered frames.
func (r *FrameRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.count
}

// Cap returns the capacity of the ring.
func (r *FrameRing) Cap() int {
	return r.capacity
}
