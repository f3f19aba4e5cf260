// Package parallel splits index ranges across goroutines for the CPU backend.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Workers int // Maximum goroutines; values below 2 run inline.
	Grain   int // Minimum indices per goroutine.
}

// DefaultConfig returns a Config using every CPU with the given grain.
func DefaultConfig(grain int) Config {
	return Config{
		Workers: runtime.GOMAXPROCS(0),
		Grain:   max(grain, 1),
	}
}

// Range calls f on disjoint [lo, hi) chunks covering [0, n) and returns once
// every call has finished. Each chunk holds at least cfg.Grain indices, except
// possibly the last. Work smaller than two grains runs on the calling goroutine.
func Range(n int, cfg Config, f func(lo, hi int)) {
	if n <= 0 {
		return
	}
	grain := max(cfg.Grain, 1)
	workers := min(cfg.Workers, n/grain)
	if workers < 2 {
		f(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(lo, hi)
		}()
	}
	wg.Wait()
}
