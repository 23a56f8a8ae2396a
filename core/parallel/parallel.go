package parallel

import (
	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// Chunks splits [start, end) into at most workers contiguous, non-overlapping
// ranges of nearly equal size (ceiling division, like the row chunks of a
// batch prediction).
func Chunks(start, end, workers int) [][2]int {
	items := end - start
	if items <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > items {
		workers = items // No need for more workers than items
	}

	chunkSize := (items + workers - 1) / workers
	chunks := make([][2]int, 0, workers)
	for s := start; s < end; s += chunkSize {
		e := s + chunkSize
		if e > end {
			e = end
		}
		chunks = append(chunks, [2]int{s, e})
	}
	return chunks
}

// Range executes fn over [start, end) split across workers goroutines and
// waits for all of them. workers of 0 or 1 runs fn on the calling goroutine.
// A panic inside fn is recovered and returned as an error; the remaining
// workers still run to completion.
func Range(start, end, workers int, fn func(start, end int)) error {
	if end <= start {
		return nil
	}
	if workers <= 1 {
		return errors.SafeExecute("parallel.Range", func() error {
			fn(start, end)
			return nil
		})
	}

	var g errgroup.Group
	for _, c := range Chunks(start, end, workers) {
		s, e := c[0], c[1]
		g.Go(func() error {
			return errors.SafeExecute("parallel.Range", func() error {
				fn(s, e)
				return nil
			})
		})
	}
	return g.Wait()
}
