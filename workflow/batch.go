package workflow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunBatch runs one independent execution of g per input, at most concurrency
// at a time (<= 0 means unbounded). Nodes inside each run stay sequential.
// results[i] corresponds to inputs[i]; a failing run does not stop the others.
// The returned error joins every run error, annotated with its input index.
func (e *Executor) RunBatch(ctx context.Context, g *CompiledGraph, inputs []Partial, concurrency int) ([]*ExecutionResult, error) {
	if g == nil {
		return nil, ErrNilGraph
	}

	results := make([]*ExecutionResult, len(inputs))
	errs := make([]error, len(inputs))

	var eg errgroup.Group
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}
	for i, input := range inputs {
		eg.Go(func() error {
			res, err := e.Run(ctx, g, input)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("input %d: %w", i, err)
			}
			return nil
		})
	}
	_ = eg.Wait()

	return results, errors.Join(errs...)
}
