package multislice

import "sync"

// Pool recycles plane-sized scratch buffers between slices and runs.
type Pool struct {
	pool sync.Pool
	size int
}

func NewPool(size int) *Pool {
	return &Pool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				return make([]float64, size)
			},
		},
	}
}

func (p *Pool) Size() int { return p.size }

func (p *Pool) Get() []float64 {
	return p.pool.Get().([]float64)
}

// Put returns a buffer. Buffers of the wrong size are dropped.
func (p *Pool) Put(buf []float64) {
	if len(buf) == p.size {
		clear(buf)
		p.pool.Put(buf)
	}
}

// pools hands out one Pool per plane size.
type pools struct {
	mu     sync.Mutex
	bySize map[int]*Pool
}

func (ps *pools) get(size int) *Pool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.bySize == nil {
		ps.bySize = make(map[int]*Pool)
	}
	p, ok := ps.bySize[size]
	if !ok {
		p = NewPool(size)
		ps.bySize[size] = p
	}
	return p
}
