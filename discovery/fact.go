package discovery

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// FactDiscoverer produces a single case for a parameterless method.
type FactDiscoverer struct{}

var _ Discoverer = FactDiscoverer{}

func (FactDiscoverer) Discover(_ context.Context, opts Options, method *types.TestMethod, attr types.Attribute) ([]*types.TestCase, error) {
	fact, ok := attr.(types.FactAttribute)
	if !ok {
		return nil, fmt.Errorf("fact discoverer cannot handle %T", attr)
	}
	if len(method.Method.Parameters()) > 0 {
		return []*types.TestCase{NewExecutionErrorCase(opts, method,
			"Fact methods are not allowed to have parameters. Did you mean to use a theory?")}, nil
	}
	if len(method.Method.GenericParameters()) > 0 {
		return []*types.TestCase{NewExecutionErrorCase(opts, method,
			"Fact methods are not allowed to be generic.")}, nil
	}
	tc, err := NewStandardCase(opts, method, fact, nil, nil, fact.Skip)
	if err != nil {
		return nil, err
	}
	return []*types.TestCase{tc}, nil
}
