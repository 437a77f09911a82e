// Package aggregator collects failures raised while running a scope so that
// cleanup can continue and every failure is reported together.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Aggregator accumulates errors. It is safe for concurrent use.
type Aggregator struct {
	mu   sync.Mutex
	errs []error
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Add records err. Nil errors are ignored.
func (a *Aggregator) Add(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

// Run calls fn, recording a returned error or a recovered panic.
// It returns whatever was recorded, or nil.
func (a *Aggregator) Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Recovered(r)
			a.Add(err)
		}
	}()
	err = fn()
	a.Add(err)
	return err
}

// RunContext is Run for functions that take a context.
func (a *Aggregator) RunContext(ctx context.Context, fn func(context.Context) error) error {
	return a.Run(func() error { return fn(ctx) })
}

// HasErrors reports whether any error has been recorded.
func (a *Aggregator) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs) > 0
}

// Errors returns a copy of the recorded errors.
func (a *Aggregator) Errors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]error, len(a.errs))
	copy(out, a.errs)
	return out
}

// Clear discards every recorded error.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = nil
}

// Clone returns an independent aggregator seeded with the recorded errors.
// Errors added to the clone are not visible to the original.
func (a *Aggregator) Clone() *Aggregator {
	return &Aggregator{errs: a.Errors()}
}

// ToError returns nil when nothing was recorded, the single error when exactly
// one was recorded, and an *AggregateError otherwise.
func (a *Aggregator) ToError() error {
	errs := a.Errors()
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &AggregateError{Errors: errs}
	}
}

// AggregateError bundles several failures raised in one scope.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// PanicError is a recovered panic. It carries the stack where it was recovered.
type PanicError struct {
	Value any
	cause error
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	return e.cause
}

// StackTrace exposes the recovery stack in the form understood by pkg/errors formatters.
func (e *PanicError) StackTrace() errors.StackTrace {
	type stackTracer interface{ StackTrace() errors.StackTrace }
	if st, ok := e.cause.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

// Recovered converts a value obtained from recover() into an error. A panic
// with an error value keeps that error reachable through errors.As.
func Recovered(r any) error {
	if err, ok := r.(error); ok {
		return &PanicError{Value: r, cause: errors.WithStack(err)}
	}
	return &PanicError{Value: r, cause: errors.Errorf("%v", r)}
}
