// Package frame holds the state shared between the capture loop and its
// readers: reference counted frames, a single-frame Cell and the Slot that
// carries the latest raw and encoded output of a session.
//
// Locks in this package are only ever held for a pointer swap. A Mat is
// never written after it has been wrapped in a Frame, so a reader holding a
// reference always sees a complete image.
package frame

import (
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// Frame is an immutable, reference counted image. The Mat is closed when
// the last reference is released.
type Frame struct {
	mat      gocv.Mat
	captured time.Time
	refs     atomic.Int32
}

// live counts frames whose Mat has not been freed yet
var live atomic.Int64

// Live returns the number of frames not yet freed. A value that keeps
// growing means a reference is being leaked.
func Live() int64 {
	return live.Load()
}

// New wraps mat, taking ownership of it. The returned Frame holds one
// reference.
func New(mat gocv.Mat) *Frame {
	f := &Frame{mat: mat, captured: time.Now()}
	f.refs.Store(1)
	live.Add(1)
	return f
}

// Ref returns a new reference to the same frame
func (f *Frame) Ref() *Frame {
	if f.refs.Add(1) <= 1 {
		panic("frame: Ref on released frame")
	}
	return f
}

// Release drops one reference, freeing the Mat on the last one
func (f *Frame) Release() {
	switch n := f.refs.Add(-1); {
	case n == 0:
		f.mat.Close()
		live.Add(-1)
	case n < 0:
		panic("frame: Release on released frame")
	}
}

// Mat returns the underlying image. Callers must treat it as read-only and
// must not use it after releasing their reference.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

// Captured returns when the frame was wrapped
func (f *Frame) Captured() time.Time {
	return f.captured
}
