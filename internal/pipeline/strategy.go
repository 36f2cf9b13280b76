package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Strategy is one way of producing a stage result.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// FirstSuccess runs strategies in order and returns the first result that
// succeeds together with the name of the strategy that produced it. Every
// failure is reported to onFailure before the next strategy runs. When all
// strategies fail the last error is returned. Context cancellation stops the
// chain immediately.
func FirstSuccess[T any](ctx context.Context, strategies []Strategy[T], onFailure func(name string, err error)) (T, string, error) {
	var zero T
	if len(strategies) == 0 {
		return zero, "", errors.New("no strategies configured")
	}

	var lastErr error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		result, err := s.Run(ctx)
		if err == nil {
			return result, s.Name, nil
		}
		lastErr = fmt.Errorf("%s: %w", s.Name, err)
		if onFailure != nil {
			onFailure(s.Name, err)
		}
	}
	return zero, "", lastErr
}
