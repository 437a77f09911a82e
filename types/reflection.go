package types

import (
	"context"
	"reflect"
)

// The interfaces in this file are the boundary to the introspection layer.
// The engine never inspects Go values directly for discovery; it only consumes
// these descriptors. Package descriptor provides a reflect-backed implementation.

// AssemblyInfo describes the assembly under test.
type AssemblyInfo interface {
	Name() string
	Path() string
	Attributes() []Attribute
	Types() []TypeInfo
}

// TypeInfo describes a test class, fixture or collection definition type.
type TypeInfo interface {
	Name() string
	// Type is the Go type of constructed instances; fixtures are matched to
	// constructor parameters by this type.
	Type() reflect.Type
	Attributes() []Attribute
	Methods() []MethodInfo
	Constructors() []ConstructorInfo
}

// ConstructorInfo describes one way of constructing a type.
type ConstructorInfo interface {
	IsPublic() bool
	Parameters() []ParameterInfo
	Invoke(args []any) (any, error)
}

// MethodInfo describes a test method.
type MethodInfo interface {
	Name() string
	IsStatic() bool
	Parameters() []ParameterInfo
	// GenericParameters lists the names of the method's type parameters.
	GenericParameters() []string
	// ResolvedTypes returns the generic type arguments once MakeGeneric was called.
	ResolvedTypes() []reflect.Type
	MakeGeneric(typeArgs []reflect.Type) (MethodInfo, error)
	Attributes() []Attribute
	// Invoke calls the method. A returned <-chan error is awaited by the caller.
	Invoke(ctx context.Context, instance any, args []any) (any, error)
}

// SourceProvider is optionally implemented by descriptors that know where they were declared.
type SourceProvider interface {
	SourceInfo() SourceInfo
}

// ParameterInfo describes one declared parameter.
type ParameterInfo struct {
	Name string
	Type reflect.Type
	// GenericParameter names the method type parameter this parameter is declared as, if any.
	GenericParameter string
	Optional         bool
	Default          any
}

// String renders the parameter as "type name", as used in diagnostics.
func (p ParameterInfo) String() string {
	typeName := "any"
	if p.Type != nil {
		typeName = p.Type.String()
	}
	if p.GenericParameter != "" {
		typeName = p.GenericParameter
	}
	return typeName + " " + p.Name
}

// Disposer is implemented by fixtures, test class instances and data values
// that release resources synchronously.
type Disposer interface {
	Dispose() error
}

// AsyncDisposer is implemented by values that release resources asynchronously.
// The returned channel yields exactly one value (nil on success).
type AsyncDisposer interface {
	DisposeAsync(ctx context.Context) <-chan error
}

// AsyncInitializer is implemented by fixtures and test class instances that
// need asynchronous initialisation after construction.
type AsyncInitializer interface {
	InitializeAsync(ctx context.Context) <-chan error
}

// TestOutput receives text written by a running test.
type TestOutput interface {
	WriteLine(format string, args ...any)
	Output() string
}

// DiagnosticSink receives diagnostic text from fixtures and discoverers.
type DiagnosticSink interface {
	Diagnostic(format string, args ...any)
}

var (
	// TestOutputType is the constructor parameter type that receives the per-test output helper.
	TestOutputType = reflect.TypeFor[TestOutput]()
	// DiagnosticSinkType is the constructor parameter type that receives a diagnostic sink.
	DiagnosticSinkType = reflect.TypeFor[DiagnosticSink]()
	// ContextType is the type of context.Context parameters.
	ContextType = reflect.TypeFor[context.Context]()
	// AnyType is used for generic parameters that could not be inferred.
	AnyType = reflect.TypeFor[any]()
)
