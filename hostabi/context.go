package hostabi

import (
	"context"

	"github.com/lunatic-solutions/lunatic-go/process"
	"github.com/lunatic-solutions/lunatic-go/scheduler"
)

type processKey struct{}
type yielderKey struct{}

// WithProcess returns a context carrying p. The scheduler Task that calls
// a guest export must set this before the call so host functions can
// recover their caller.
func WithProcess(ctx context.Context, p *process.Process) context.Context {
	return context.WithValue(ctx, processKey{}, p)
}

// ProcessFromContext recovers the process stashed by WithProcess.
func ProcessFromContext(ctx context.Context) (*process.Process, bool) {
	p, ok := ctx.Value(processKey{}).(*process.Process)
	return p, ok
}

// WithYielder returns a context carrying y, the scheduler's handle for
// this call's cooperative yield point.
func WithYielder(ctx context.Context, y *scheduler.Yielder) context.Context {
	return context.WithValue(ctx, yielderKey{}, y)
}

// YielderFromContext recovers the Yielder stashed by WithYielder.
func YielderFromContext(ctx context.Context) (*scheduler.Yielder, bool) {
	y, ok := ctx.Value(yielderKey{}).(*scheduler.Yielder)
	return y, ok
}
