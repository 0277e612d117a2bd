package pipeline

import (
	"context"
	"time"

	"github.com/jonathan/candidate-research/internal/pipeline/steps"
)

// Delay supplies the wait before each stage is published. It stands in for the
// asynchronous work a stage performs and is the driver's only suspension point.
type Delay interface {
	Wait(ctx context.Context, stage steps.Stage) error
}

// DelayFunc adapts a function to the Delay interface
type DelayFunc func(ctx context.Context, stage steps.Stage) error

// Wait calls f
func (f DelayFunc) Wait(ctx context.Context, stage steps.Stage) error {
	return f(ctx, stage)
}

// NoDelay returns immediately unless the context is already done
var NoDelay Delay = DelayFunc(func(ctx context.Context, _ steps.Stage) error {
	return ctx.Err()
})

// FixedDelay waits the same duration before every stage
func FixedDelay(d time.Duration) Delay {
	return DelayFunc(func(ctx context.Context, _ steps.Stage) error {
		if d <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	})
}
