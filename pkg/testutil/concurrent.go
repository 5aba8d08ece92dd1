// Package testutil holds helpers shared by concurrency tests.
package testutil

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes int32
	Expected  int32 // errors matching the expected sentinel
	Errors    int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Expected + r.Errors
}

// RunConcurrent executes fn in parallel goroutines and counts outcomes.
// Errors matching expected (via errors.Is) are counted apart from the rest;
// pass nil to treat every error alike.
func RunConcurrent(goroutines int, expected error, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, matched, errs atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case expected != nil && errors.Is(err, expected):
				matched.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes: successes.Load(),
		Expected:  matched.Load(),
		Errors:    errs.Load(),
	}
}
