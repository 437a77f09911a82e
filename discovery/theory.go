package discovery

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// TheoryDiscoverer expands a theory into cases. When every row from every
// data source can be enumerated and serialised, each row becomes its own
// case. Otherwise the theory falls back to one delay-enumerated case so that
// no row is lost.
type TheoryDiscoverer struct{}

var _ Discoverer = TheoryDiscoverer{}

func (TheoryDiscoverer) Discover(ctx context.Context, opts Options, method *types.TestMethod, attr types.Attribute) ([]*types.TestCase, error) {
	theory, ok := attr.(types.TheoryAttribute)
	if !ok {
		return nil, fmt.Errorf("theory discoverer cannot handle %T", attr)
	}
	log := opts.logger().New("method", method.FullName())

	if theory.Skip != "" {
		tc, err := NewStandardCase(opts, method, theory.FactAttribute, nil, nil, theory.Skip)
		if err != nil {
			return nil, err
		}
		return []*types.TestCase{tc}, nil
	}

	delayed := []*types.TestCase{NewDelayEnumeratedCase(opts, method, theory)}
	if !opts.PreEnumerateTheories || theory.DisableDiscoveryEnumeration {
		return delayed, nil
	}

	var cases []*types.TestCase
	seen := make(map[string]*types.TestCase)
	for _, source := range types.FindAttributes[types.DataAttribute](method.Method.Attributes()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !source.SupportsDiscoveryEnumeration() {
			log.Debug("Data source opts out of discovery enumeration", "source", fmt.Sprintf("%T", source))
			return delayed, nil
		}
		rows, err := enumerate(ctx, source, method.Method)
		if err != nil {
			log.Debug("Data enumeration failed during discovery, deferring to run time", "err", err)
			return delayed, nil
		}
		for _, row := range rows {
			tc, err := expandRow(opts, method, theory, row, source.SkipReason())
			if err != nil {
				log.Debug("Theory row cannot be pre-enumerated", "err", err)
				return delayed, nil
			}
			if prev, dup := seen[tc.UniqueID]; dup {
				opts.diagnostic("Skipping test case with duplicate ID '%s' ('%s' and '%s')", tc.UniqueID, prev.DisplayName, tc.DisplayName)
				continue
			}
			seen[tc.UniqueID] = tc
			cases = append(cases, tc)
		}
	}

	if len(cases) == 0 {
		return []*types.TestCase{NewExecutionErrorCase(opts, method,
			fmt.Sprintf("No data found for %s", method.FullName()))}, nil
	}
	return cases, nil
}

func expandRow(opts Options, method *types.TestMethod, theory types.TheoryAttribute, row []any, skip string) (*types.TestCase, error) {
	resolved, genericTypes, err := ResolveMethod(method.Method, row)
	if err != nil {
		return nil, err
	}
	args := CoerceArguments(resolved.Parameters(), row)
	return NewStandardCase(opts, method, theory.FactAttribute, args, genericTypes, skip)
}

// enumerate calls the data source, converting a panic into an error.
func enumerate(ctx context.Context, source types.DataAttribute, method types.MethodInfo) (rows [][]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = aggregator.Recovered(r)
		}
	}()
	return source.Data(ctx, method)
}

// Enumerate is the run-time counterpart of discovery enumeration: it returns
// every row from every data source of the method, with the skip reason of
// the source that produced it.
func Enumerate(ctx context.Context, method types.MethodInfo) ([]Row, error) {
	var rows []Row
	for _, source := range types.FindAttributes[types.DataAttribute](method.Attributes()) {
		data, err := enumerate(ctx, source, method)
		if err != nil {
			return nil, err
		}
		for _, args := range data {
			rows = append(rows, Row{Arguments: args, SkipReason: source.SkipReason()})
		}
	}
	return rows, nil
}

// Row is one data row produced at run time.
type Row struct {
	Arguments  []any
	SkipReason string
}
