package planartrack

import (
	"sync"
)

// Pool is a simple engine pool used to run the same tracking pipeline
// over frames from multiple cameras or across worker goroutines
type Pool struct {
	// pool of engines
	engines chan *Engine
	// size of pool
	size  int
	close sync.Once
}

// NewPool creates a new engine pool.  The build function is called once
// per pool slot so every engine gets its own pipeline state
func NewPool(size int, build func() (*Engine, error)) (*Pool, error) {
	p := &Pool{
		engines: make(chan *Engine, size),
		size:    size,
	}

	for i := 0; i < size; i++ {
		eng, err := build()

		if err != nil {
			// release any engines created before receiving the error
			p.Close()
			return nil, err
		}

		// attach to pool
		p.Return(eng)
	}

	return p, nil
}

// Get an engine from the pool
func (p *Pool) Get() *Engine {
	return <-p.engines
}

// Return an engine to the pool
func (p *Pool) Return(engine *Engine) {
	select {
	case p.engines <- engine:
	default:
		// pool is full or closed
	}
}

// Size returns the number of pool slots
func (p *Pool) Size() int {
	return p.size
}

// Close the pool and reset all engines in it
func (p *Pool) Close() {
	p.close.Do(func() {
		// close channel
		close(p.engines)

		// reset all engines
		for next := range p.engines {
			next.Reset()
		}
	})
}
