// Package async runs independent tasks over a bounded worker pool and
// collects their results by name. One task failing never affects the rest.
package async

import (
	"context"
	"fmt"
	"sync"
)

type Task[T any] struct {
	Name    string
	Execute func(ctx context.Context) (T, error)
}

type Result[T any] struct {
	Name string
	Data T
	Err  error
}

// Run executes the tasks across at most workerCount goroutines and returns
// a result per task name. A panicking task is reported as its own failed
// result. On context cancellation the partial result set is returned.
func Run[T any](ctx context.Context, workerCount int, tasks []Task[T]) map[string]Result[T] {
	if workerCount > len(tasks) {
		workerCount = len(tasks)
	}
	results := make(map[string]Result[T], len(tasks))
	if workerCount <= 0 {
		return results
	}

	taskCh := make(chan Task[T])
	resultCh := make(chan Result[T])

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case task, ok := <-taskCh:
					if !ok {
						return
					}
					select {
					case resultCh <- run(ctx, task):
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-resultCh:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}
	wg.Wait()
	return results
}

func run[T any](ctx context.Context, task Task[T]) (result Result[T]) {
	result.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	result.Data, result.Err = task.Execute(ctx)
	return result
}
