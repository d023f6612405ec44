package payload

import (
	"context"
	"errors"
)

// ErrWorkerFault marks a failure of the execution environment rather than of
// the task itself. A worker that sees it is retired from the pool.
var ErrWorkerFault = errors.New("worker fault")

// Payload is the interface that all stub computations must implement.
type Payload interface {
	// Kind returns the record kind the payload was built from.
	Kind() string

	// Execute runs the computation synchronously and returns a short output
	// summary. A returned error is a task failure unless it wraps
	// ErrWorkerFault.
	Execute(ctx context.Context) (string, error)
}

// Factory builds a payload from the arguments of one program record.
type Factory func(args []string) (Payload, error)

// Func adapts a plain function into a Payload.
type Func struct {
	Name string
	Fn   func(ctx context.Context) (string, error)
}

func (f Func) Kind() string { return f.Name }

func (f Func) Execute(ctx context.Context) (string, error) {
	return f.Fn(ctx)
}
