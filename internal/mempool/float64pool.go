// Package mempool provides sized pools for the scratch buffers of the
// estimation hot path.
package mempool

import (
	"sync"
)

var float64Pools sync.Map // key: size class (int), value: *sync.Pool

// sizeClass rounds n up to the next multiple of 256 to reduce churn.
func sizeClass(n int) int {
	const step = 256
	if n <= step {
		return step
	}
	r := (n + step - 1) / step
	return r * step
}

func pool(cls int) *sync.Pool {
	pAny, _ := float64Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float64, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return nil
	}
	return p
}

// GetFloat64 retrieves a zeroed []float64 of length n from the pool.
// The returned slice may have larger capacity.
// The caller must return it via PutFloat64 when done.
func GetFloat64(n int) []float64 {
	cls := sizeClass(n)
	p := pool(cls)
	if p == nil {
		return make([]float64, n)
	}
	buf, ok := p.Get().([]float64)
	if !ok || cap(buf) < cls {
		buf = make([]float64, cls)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

// PutFloat64 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat64(buf []float64) {
	if buf == nil {
		return
	}
	// Buffers are filed under the class their capacity fully covers.
	cls := sizeClass(cap(buf))
	if cls > cap(buf) {
		cls -= 256
	}
	if cls <= 0 {
		return
	}
	p := pool(cls)
	if p == nil {
		return
	}
	p.Put(buf[:cap(buf)]) //nolint:staticcheck
}
