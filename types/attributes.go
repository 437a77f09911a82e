package types

import (
	"context"
	"time"
)

// AttributeKind identifies what an attribute means to the engine. Discoverers
// are registered per kind.
type AttributeKind string

const (
	KindFact                 AttributeKind = "fact"
	KindTheory               AttributeKind = "theory"
	KindData                 AttributeKind = "data"
	KindTrait                AttributeKind = "trait"
	KindCollection           AttributeKind = "collection"
	KindCollectionDefinition AttributeKind = "collection-definition"
	KindClassFixture         AttributeKind = "class-fixture"
	KindCollectionFixture    AttributeKind = "collection-fixture"
	KindTestCaseOrderer      AttributeKind = "test-case-orderer"
	KindBeforeAfterTest      AttributeKind = "before-after-test"
	KindCollectionBehavior   AttributeKind = "collection-behavior"
)

// Attribute is metadata attached to assemblies, types and methods.
type Attribute interface {
	AttributeKind() AttributeKind
}

// FindAttributes returns every attribute assignable to T, in declaration order.
func FindAttributes[T Attribute](attrs []Attribute) []T {
	var found []T
	for _, a := range attrs {
		if t, ok := a.(T); ok {
			found = append(found, t)
		}
	}
	return found
}

// FindAttribute returns the first attribute assignable to T.
func FindAttribute[T Attribute](attrs []Attribute) (T, bool) {
	for _, a := range attrs {
		if t, ok := a.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// FactAttribute marks a parameterless test method.
type FactAttribute struct {
	DisplayName string
	Skip        string
	Timeout     time.Duration
	Explicit    bool
}

func (FactAttribute) AttributeKind() AttributeKind { return KindFact }

// TheoryAttribute marks a data-driven test method.
type TheoryAttribute struct {
	FactAttribute
	// DisableDiscoveryEnumeration forces the theory to be enumerated at run time.
	DisableDiscoveryEnumeration bool
}

func (TheoryAttribute) AttributeKind() AttributeKind { return KindTheory }

// DataAttribute supplies rows of arguments to a theory.
type DataAttribute interface {
	Attribute
	Data(ctx context.Context, method MethodInfo) ([][]any, error)
	SkipReason() string
	SupportsDiscoveryEnumeration() bool
}

// InlineDataAttribute supplies a single row of literal arguments.
type InlineDataAttribute struct {
	Values []any
	Skip   string
}

// InlineData is shorthand for an InlineDataAttribute.
func InlineData(values ...any) InlineDataAttribute {
	return InlineDataAttribute{Values: values}
}

func (InlineDataAttribute) AttributeKind() AttributeKind { return KindData }

func (a InlineDataAttribute) Data(context.Context, MethodInfo) ([][]any, error) {
	row := make([]any, len(a.Values))
	copy(row, a.Values)
	return [][]any{row}, nil
}

func (a InlineDataAttribute) SkipReason() string { return a.Skip }

func (InlineDataAttribute) SupportsDiscoveryEnumeration() bool { return true }

// FuncDataAttribute supplies rows produced by a function. The function is
// called during discovery unless DisableDiscoveryEnumeration is set, and again
// at run time for delay-enumerated cases.
type FuncDataAttribute struct {
	Name                        string
	Func                        func() ([][]any, error)
	Skip                        string
	DisableDiscoveryEnumeration bool
}

func (FuncDataAttribute) AttributeKind() AttributeKind { return KindData }

func (a FuncDataAttribute) Data(context.Context, MethodInfo) ([][]any, error) {
	if a.Func == nil {
		return nil, &DefinitionError{Msg: "data source " + a.Name + " has no function"}
	}
	return a.Func()
}

func (a FuncDataAttribute) SkipReason() string { return a.Skip }

func (a FuncDataAttribute) SupportsDiscoveryEnumeration() bool {
	return !a.DisableDiscoveryEnumeration
}

// TraitAttribute tags a class or method with a key/value pair.
type TraitAttribute struct {
	Name  string
	Value string
}

func (TraitAttribute) AttributeKind() AttributeKind { return KindTrait }

// CollectionAttribute places a test class in a named collection.
type CollectionAttribute struct {
	Name string
}

func (CollectionAttribute) AttributeKind() AttributeKind { return KindCollection }

// CollectionDefinitionAttribute declares a named collection on a definition type.
type CollectionDefinitionAttribute struct {
	Name                   string
	DisableParallelization bool
	// ParallelizeClasses runs the classes of this collection concurrently.
	ParallelizeClasses bool
}

func (CollectionDefinitionAttribute) AttributeKind() AttributeKind {
	return KindCollectionDefinition
}

// ClassFixtureAttribute requests a fixture shared by every test of a class.
type ClassFixtureAttribute struct {
	Fixture TypeInfo
}

func (ClassFixtureAttribute) AttributeKind() AttributeKind { return KindClassFixture }

// CollectionFixtureAttribute requests a fixture shared by every class in a collection.
type CollectionFixtureAttribute struct {
	Fixture TypeInfo
}

func (CollectionFixtureAttribute) AttributeKind() AttributeKind { return KindCollectionFixture }

// TestCaseOrderer orders the cases of one test class.
type TestCaseOrderer interface {
	OrderTestCases(cases []*TestCase) ([]*TestCase, error)
}

// TestCaseOrdererAttribute overrides the orderer for a class.
type TestCaseOrdererAttribute struct {
	Orderer TestCaseOrderer
}

func (TestCaseOrdererAttribute) AttributeKind() AttributeKind { return KindTestCaseOrderer }

// BeforeAfterTestAttribute runs code around each test of the class or method it decorates.
type BeforeAfterTestAttribute interface {
	Attribute
	Name() string
	Before(ctx context.Context, test *Test) error
	After(ctx context.Context, test *Test) error
}

// HookAttribute is a BeforeAfterTestAttribute built from plain functions.
type HookAttribute struct {
	HookName   string
	BeforeFunc func(ctx context.Context, test *Test) error
	AfterFunc  func(ctx context.Context, test *Test) error
}

func (HookAttribute) AttributeKind() AttributeKind { return KindBeforeAfterTest }

func (h HookAttribute) Name() string { return h.HookName }

func (h HookAttribute) Before(ctx context.Context, test *Test) error {
	if h.BeforeFunc == nil {
		return nil
	}
	return h.BeforeFunc(ctx, test)
}

func (h HookAttribute) After(ctx context.Context, test *Test) error {
	if h.AfterFunc == nil {
		return nil
	}
	return h.AfterFunc(ctx, test)
}

// CollectionBehaviorAttribute configures collection grouping and parallelism for an assembly.
type CollectionBehaviorAttribute struct {
	PerAssembly                bool
	DisableTestParallelization bool
	MaxParallelThreads         int
}

func (CollectionBehaviorAttribute) AttributeKind() AttributeKind {
	return KindCollectionBehavior
}
