package frame

import (
	"sync"
	"time"
)

// Cell holds at most one frame
type Cell struct {
	mu sync.RWMutex
	f  *Frame
}

// Store replaces the held frame with f, taking over the caller's
// reference. The previous frame is released outside the lock.
func (c *Cell) Store(f *Frame) {
	c.mu.Lock()
	old := c.f
	c.f = f
	c.mu.Unlock()

	if old != nil {
		old.Release()
	}
}

// Load returns a new reference to the held frame, or nil
func (c *Cell) Load() *Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.f == nil {
		return nil
	}
	return c.f.Ref()
}

// Present reports whether a frame is held
func (c *Cell) Present() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.f != nil
}

// Clear drops the held frame
func (c *Cell) Clear() {
	c.Store(nil)
}

// Encoded is a published, transport-ready frame. Data is never modified
// after publication.
type Encoded struct {
	Data      []byte
	Seq       uint64
	Published time.Time
}

// Slot carries the latest raw frame and the latest encoded frame of one
// session. Writers are the capture loop only; any number of readers.
type Slot struct {
	raw Cell

	mu      sync.RWMutex
	encoded *Encoded
	seq     uint64
}

// NewSlot creates an empty slot
func NewSlot() *Slot {
	return &Slot{}
}

// NewSlotFrom creates an empty slot whose first published frame gets
// sequence seq+1, so numbering continues across sessions
func NewSlotFrom(seq uint64) *Slot {
	return &Slot{seq: seq}
}

// PublishRaw stores the latest raw frame, taking over the caller's reference
func (s *Slot) PublishRaw(f *Frame) {
	s.raw.Store(f)
}

// Raw returns a reference to the latest raw frame, or nil. The caller must
// Release it.
func (s *Slot) Raw() *Frame {
	return s.raw.Load()
}

// PublishEncoded stores data as the latest encoded frame and returns its
// sequence number. data must not be modified afterwards.
func (s *Slot) PublishEncoded(data []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.encoded = &Encoded{Data: data, Seq: s.seq, Published: time.Now()}
	return s.seq
}

// Encoded returns the latest encoded frame, or nil before the first publish
func (s *Slot) Encoded() *Encoded {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encoded
}

// Seq returns the sequence number of the latest encoded frame
func (s *Slot) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Reset drops both frames. The sequence number keeps counting so readers
// never see it go backwards.
func (s *Slot) Reset() {
	s.raw.Clear()

	s.mu.Lock()
	s.encoded = nil
	s.mu.Unlock()
}
