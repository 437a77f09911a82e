package discovery

import (
	"reflect"

	"github.com/ethereum-optimism/infra/op-testkit/serialization"
	"github.com/ethereum-optimism/infra/op-testkit/types"
	"github.com/ethereum-optimism/infra/op-testkit/uniqueid"
)

// NewStandardCase builds a case that runs exactly one test. args must be
// serialisable; their encoding is part of the case ID.
func NewStandardCase(opts Options, method *types.TestMethod, fact types.FactAttribute, args []any, genericTypes []reflect.Type, skipReason string) (*types.TestCase, error) {
	serialized, err := serialization.SerializeArguments(args)
	if err != nil {
		return nil, err
	}
	typeNames := make([]string, len(genericTypes))
	for i, t := range genericTypes {
		typeNames[i] = TypeName(t)
	}

	display := FormatDisplayName(BaseDisplayName(method, fact), method.Method.Parameters(), args, genericTypes)
	tc := types.NewTestCase(types.CaseKindStandard, method, display, skipReason)
	tc.Arguments = args
	tc.GenericTypes = genericTypes
	tc.UniqueID = uniqueid.ForTestCase(method.UniqueID, typeNames, serialized)
	applyFact(opts, tc, fact)
	return tc, nil
}

// NewDelayEnumeratedCase builds a theory case whose rows are enumerated when
// it runs.
func NewDelayEnumeratedCase(opts Options, method *types.TestMethod, theory types.TheoryAttribute) *types.TestCase {
	tc := types.NewTestCase(types.CaseKindDelayEnumerated, method, BaseDisplayName(method, theory.FactAttribute), theory.Skip)
	tc.UniqueID = uniqueid.ForTestCase(method.UniqueID, nil, nil)
	applyFact(opts, tc, theory.FactAttribute)
	return tc
}

// NewExecutionErrorCase builds a case that fails with msg when run.
func NewExecutionErrorCase(opts Options, method *types.TestMethod, msg string) *types.TestCase {
	tc := types.NewTestCase(types.CaseKindExecutionError, method, method.FullName(), "")
	tc.UniqueID = uniqueid.ForTestCase(method.UniqueID, nil, nil)
	tc.ErrorMessage = msg
	addTraits(tc)
	addSource(tc)
	return tc
}

func applyFact(opts Options, tc *types.TestCase, fact types.FactAttribute) {
	tc.Timeout = fact.Timeout
	if tc.Timeout == 0 {
		tc.Timeout = opts.DefaultTimeout
	}
	tc.Explicit = fact.Explicit
	addTraits(tc)
	addSource(tc)
}

func addTraits(tc *types.TestCase) {
	class := tc.TestClass().Class
	for _, attrs := range [][]types.Attribute{class.Attributes(), tc.Method().Attributes()} {
		for _, trait := range types.FindAttributes[types.TraitAttribute](attrs) {
			tc.Traits.Add(trait.Name, trait.Value)
		}
	}
}

func addSource(tc *types.TestCase) {
	if sp, ok := tc.Method().(types.SourceProvider); ok {
		tc.Source = sp.SourceInfo()
	}
}
