// Package parallel splits work across goroutines for the software accelerator.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum lanes per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// Sequential returns a config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{NumWorkers: 1}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	_ = ForGroups(n, 1, func(i int) error {
		f(i)
		return nil
	}, cfg)
}

// ForGroups executes f(g) for every work-group g in [0, groups), where each
// group spans lanes lanes. Groups are chunked so that one goroutine handles at
// least cfg.MinChunkSize lanes. The first error in group order is returned;
// every group runs even when an earlier one failed.
func ForGroups(groups, lanes int, f func(g int) error, cfg Config) error {
	if groups <= 0 {
		return nil
	}
	lanes = max(lanes, 1)
	workers := max(cfg.NumWorkers, 1)

	if !cfg.Enabled || workers == 1 || groups*lanes < cfg.MinChunkSize || groups == 1 {
		var first error
		for g := 0; g < groups; g++ {
			if err := f(g); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	minGroups := max((cfg.MinChunkSize+lanes-1)/lanes, 1)
	chunk := max((groups+workers-1)/workers, minGroups)
	errs := make([]error, groups)

	var wg sync.WaitGroup
	for start := 0; start < groups; start += chunk {
		end := min(start+chunk, groups)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for g := s; g < e; g++ {
				errs[g] = f(g)
			}
		}(start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
