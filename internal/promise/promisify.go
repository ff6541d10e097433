package promise

import (
	"context"
	"fmt"

	"github.com/menchan-Rub/AeroJS-sub002/internal/jsvalue"
)

// PanicError wraps a panic value recovered from a Promisify goroutine.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string { return fmt.Sprintf("promisify: goroutine panicked: %v", e.Value) }

// Promisify runs fn in a new goroutine and returns a promise settled with
// its result. Resolution always happens by enqueueing onto queue rather
// than touching the promise directly from fn's goroutine, so settlement is
// observed only at a microtask-drain boundary like every other reaction —
// this is the seam native (Go-implemented) async builtins use to produce a
// Promise, e.g. a future streaming Wasm compile.
func Promisify(ctx context.Context, queue *MicrotaskQueue, fn func(ctx context.Context) (jsvalue.Value, error)) *Promise {
	p := New(queue)

	go func() {
		var (
			v   jsvalue.Value
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = PanicError{Value: r}
				}
			}()
			v, err = fn(ctx)
		}()

		queue.Enqueue(func() {
			if err != nil {
				p.Reject(jsvalue.String(err.Error()))
				return
			}
			p.Resolve(v)
		})
	}()

	return p
}
