// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parallel

import (
	"context"
	"sync"

	"github.com/juju/errors"
)

const chanSize = 1024

/* Parallel Schedulers */

// Parallel schedules and runs tasks in parallel. nJobs is the number of tasks. nWorkers is
// the number of executors. worker is the executed function which is passed the worker id
// and the job id. The ctx argument allows callers to cancel outstanding work. A panic in
// worker is returned as an error of the job.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := run(worker, 0, i); err != nil {
				return errors.Trace(err)
			}
		}
	} else {
		// jobCtx stops the producer and idle workers once a job fails
		jobCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		c := make(chan int, chanSize)
		// producer
		go func() {
			defer close(c)
			for i := 0; i < nJobs; i++ {
				select {
				case <-jobCtx.Done():
					return
				case c <- i:
				}
			}
		}()
		// consumer
		var wg sync.WaitGroup
		errs := make([]error, nJobs)
		for j := 0; j < nWorkers; j++ {
			workerId := j
			wg.Go(func() {
				for {
					select {
					case <-jobCtx.Done():
						return
					case jobId, ok := <-c:
						if !ok {
							return
						}
						if err := ctx.Err(); err != nil {
							errs[jobId] = err
							return
						}
						if err := run(worker, workerId, jobId); err != nil {
							errs[jobId] = err
							cancel()
							return
						}
					}
				}
			})
		}
		wg.Wait()
		// check errors
		for _, err := range errs {
			if err != nil {
				return errors.Trace(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func run(worker func(workerId, jobId int) error, workerId, jobId int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in job %d: %v", jobId, r)
		}
	}()
	return worker(workerId, jobId)
}

// For runs worker on [0, nJobs) with nWorkers goroutines.
func For(ctx context.Context, nJobs, nWorkers int, worker func(int)) error {
	return Parallel(ctx, nJobs, nWorkers, func(_, jobId int) error {
		worker(jobId)
		return nil
	})
}

// MapReduce runs mapper on every job in parallel and folds the partial results with
// reduce in ascending job order. The result does not depend on nWorkers as long as
// mapper is deterministic for each job.
func MapReduce[T any](ctx context.Context, nJobs, nWorkers int, mapper func(jobId int) (T, error), reduce func(acc, partial T) T) (T, error) {
	var zero T
	if nJobs == 0 {
		return zero, nil
	}
	partials := make([]T, nJobs)
	err := Parallel(ctx, nJobs, nWorkers, func(_, jobId int) error {
		partial, err := mapper(jobId)
		if err != nil {
			return errors.Trace(err)
		}
		partials[jobId] = partial
		return nil
	})
	if err != nil {
		return zero, errors.Trace(err)
	}
	acc := partials[0]
	for _, partial := range partials[1:] {
		acc = reduce(acc, partial)
	}
	return acc, nil
}
