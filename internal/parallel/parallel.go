// Package parallel splits independent kernel work items across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on CPU count.
//
// Work items of the depthwise kernels are whole spatial planes, so a chunk of a
// couple of items already outweighs the goroutine cost.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 2,
	}
}

// Sequential returns a Config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
// Callers must make f(i) write disjoint memory for distinct i.
func For(n int, f func(i int), cfg Config) {
	workers := max(cfg.NumWorkers, 1)
	minChunk := max(cfg.MinChunkSize, 1)
	if !cfg.Enabled || workers == 1 || n < 2*minChunk {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+workers-1)/workers, minChunk)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForGrid runs f(outer, inner) over an outer x inner grid, e.g. batch x channel
// or channel x multiplier slices of an NHWC tensor.
func ForGrid(outer, inner int, f func(o, i int), cfg Config) {
	For(outer*inner, func(k int) {
		f(k/inner, k%inner)
	}, cfg)
}
