package runner

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

type fixture struct {
	info  types.TypeInfo
	typ   reflect.Type
	value any
}

// fixtureSet owns the fixtures of one class or collection for the life of
// its runner. Each fixture type is constructed at most once; dispose
// releases every fixture exactly once, in construction order.
type fixtureSet struct {
	kind     string
	fixtures []fixture
	disposed bool
}

func newFixtureSet(kind string) *fixtureSet {
	return &fixtureSet{kind: kind}
}

// create constructs the fixture type. Constructor parameters are resolved
// with resolve.
func (s *fixtureSet) create(ctx context.Context, info types.TypeInfo, resolve func(types.ParameterInfo) (any, bool)) error {
	for _, f := range s.fixtures {
		if f.info == info {
			return nil
		}
	}

	var public []types.ConstructorInfo
	for _, c := range info.Constructors() {
		if c.IsPublic() {
			public = append(public, c)
		}
	}
	if len(public) != 1 {
		return &types.TestClassError{Msg: fmt.Sprintf("%s fixture type '%s' may only define a single public constructor.", s.kind, info.Name())}
	}

	args, unresolved := resolveArgs(public[0].Parameters(), resolve)
	if len(unresolved) > 0 {
		return &types.TestClassError{Msg: fmt.Sprintf("%s fixture type '%s' had one or more unresolved constructor arguments: %s",
			s.kind, info.Name(), strings.Join(unresolved, ", "))}
	}

	value, err := construct(public[0], args)
	if err != nil {
		return fmt.Errorf("%s fixture type '%s' threw in its constructor: %w", strings.ToLower(s.kind), info.Name(), err)
	}
	typ := info.Type()
	if typ == nil && value != nil {
		typ = reflect.TypeOf(value)
	}
	s.fixtures = append(s.fixtures, fixture{info: info, typ: typ, value: value})

	if init, ok := value.(types.AsyncInitializer); ok {
		if err := await(ctx, init.InitializeAsync(ctx)); err != nil {
			return fmt.Errorf("%s fixture type '%s' failed to initialize: %w", strings.ToLower(s.kind), info.Name(), err)
		}
	}
	return nil
}

// lookup returns the fixture of type t, preferring an exact type match over
// an assignable one.
func (s *fixtureSet) lookup(t reflect.Type) (any, bool) {
	if s == nil || t == nil {
		return nil, false
	}
	for _, f := range s.fixtures {
		if f.typ == t {
			return f.value, true
		}
	}
	for _, f := range s.fixtures {
		if f.typ != nil && f.typ.AssignableTo(t) {
			return f.value, true
		}
	}
	return nil, false
}

func (s *fixtureSet) count() int {
	if s == nil {
		return 0
	}
	return len(s.fixtures)
}

// dispose releases the fixtures. Failures are added to agg.
func (s *fixtureSet) dispose(ctx context.Context, agg *aggregator.Aggregator) {
	if s == nil || s.disposed {
		return
	}
	s.disposed = true
	for _, f := range s.fixtures {
		if err := disposeValue(ctx, f.value); err != nil {
			agg.Add(fmt.Errorf("disposing %s fixture '%s': %w", strings.ToLower(s.kind), f.info.Name(), err))
		}
	}
}

// resolveArgs resolves each parameter, falling back to the declared default
// of optional parameters. Unresolved parameters are returned as "type name".
func resolveArgs(params []types.ParameterInfo, resolve func(types.ParameterInfo) (any, bool)) ([]any, []string) {
	args := make([]any, len(params))
	var unresolved []string
	for i, p := range params {
		if v, ok := resolve(p); ok {
			args[i] = v
			continue
		}
		if p.Optional {
			args[i] = p.Default
			continue
		}
		unresolved = append(unresolved, p.String())
	}
	return args, unresolved
}

// construct invokes ctor, converting a panic into an error.
func construct(ctor types.ConstructorInfo, args []any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = aggregator.Recovered(r)
		}
	}()
	return ctor.Invoke(args)
}

// disposeValue releases v using the asynchronous protocol when available,
// otherwise the synchronous one.
func disposeValue(ctx context.Context, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = aggregator.Recovered(r)
		}
	}()
	switch d := v.(type) {
	case types.AsyncDisposer:
		return await(ctx, d.DisposeAsync(ctx))
	case types.Disposer:
		return d.Dispose()
	case io.Closer:
		return d.Close()
	}
	return nil
}

func disposable(v any) bool {
	switch v.(type) {
	case types.AsyncDisposer, types.Disposer, io.Closer:
		return true
	}
	return false
}

// await waits for the single result of an asynchronous operation. A nil
// channel means the operation completed synchronously.
func await(ctx context.Context, ch <-chan error) error {
	if ch == nil {
		return nil
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
