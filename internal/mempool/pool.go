// Package mempool provides size-classed slice pools for hot paths such as
// per-candidate bitmap sampling.
package mempool

import (
	"sync"
)

// step is the size-class granularity in elements.
const step = 1024

// Pool hands out slices of T grouped by size class. The zero value is ready
// to use and safe for concurrent use.
type Pool[T any] struct {
	classes sync.Map // key: size class (int), value: *sync.Pool
}

// Float32 backs sampled marker bitmaps.
var Float32 Pool[float32]

// sizeClass rounds n up to the next multiple of step (minimum one step).
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func (p *Pool[T]) pool(cls int) *sync.Pool {
	if v, ok := p.classes.Load(cls); ok {
		if sp, ok := v.(*sync.Pool); ok {
			return sp
		}
	}
	v, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	sp, _ := v.(*sync.Pool)
	return sp
}

// Get returns a slice of length n. Contents are unspecified; callers that
// need zeroed memory must clear it. Return it with Put when done.
func (p *Pool[T]) Get(n int) []T {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	sp := p.pool(cls)
	if sp == nil {
		return make([]T, n, cls)
	}
	bufPtr, ok := sp.Get().(*[]T)
	if !ok || cap(*bufPtr) < cls {
		return make([]T, n, cls)
	}
	return (*bufPtr)[:n]
}

// Put returns a buffer obtained from Get. It is safe to pass nil.
func (p *Pool[T]) Put(buf []T) {
	if buf == nil {
		return
	}
	// Buffers that do not fill a whole class are dropped, not misfiled.
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		return
	}
	sp := p.pool(cls)
	if sp == nil {
		return
	}
	buf = buf[:cap(buf)]
	sp.Put(&buf)
}
