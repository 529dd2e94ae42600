package cimg

import (
	"runtime"
	"sync"
)

// ParallelRows runs fn over every row of the image using a pool of
// worker goroutines. fn must touch only its own row, and must be a
// pure per-pixel computation: the output is identical whatever the
// worker count, because no cross-row accumulation happens here.
// (Statistics that do accumulate, like ChannelMean, stay sequential.)
func ParallelRows(h int, fn func(y int)) {
	nWorkers := runtime.NumCPU()
	if nWorkers > h {
		nWorkers = h
	}
	if nWorkers <= 1 {
		for y := 0; y < h; y++ {
			fn(y)
		}
		return
	}

	var wg sync.WaitGroup
	rows := make(chan int, h)

	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rows {
				fn(y)
			}
		}()
	}

	for y := 0; y < h; y++ {
		rows <- y
	}
	close(rows)
	wg.Wait()
}
