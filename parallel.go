package butteraugli

import (
	"runtime"
	"sync"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Below this many rows a stage runs on the calling goroutine.
const minParallelRows = 16

var (
	sharedPoolOnce sync.Once
	sharedPool     *workerpool.Pool
)

// defaultPool returns the process-wide pool used when no pool is configured.
// It is never closed.
func defaultPool() *workerpool.Pool {
	sharedPoolOnce.Do(func() {
		sharedPool = workerpool.New(runtime.GOMAXPROCS(0))
	})
	return sharedPool
}

// parallelRows calls fn over contiguous sub-ranges of [0, n). It returns
// once every range is done. fn must only write output rows in its range and
// must not call parallelRows itself.
func parallelRows(pool *workerpool.Pool, n int, fn func(start, end int)) {
	if pool == nil || n < minParallelRows {
		fn(0, n)
		return
	}
	pool.ParallelFor(n, fn)
}
