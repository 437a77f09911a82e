package types

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// TestStatus represents the possible outcomes of a test execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusSkip  TestStatus = "skip"
	TestStatusError TestStatus = "error"
)

// CaseKind distinguishes how a test case produces its tests at run time.
type CaseKind int

const (
	// CaseKindStandard is a fact, or a theory row that was enumerated during discovery.
	CaseKindStandard CaseKind = iota
	// CaseKindDelayEnumerated is a theory whose data rows are resolved at execution time.
	CaseKindDelayEnumerated
	// CaseKindExecutionError is a synthetic case that always fails with ErrorMessage.
	CaseKindExecutionError
)

func (k CaseKind) String() string {
	switch k {
	case CaseKindStandard:
		return "standard"
	case CaseKindDelayEnumerated:
		return "delay-enumerated"
	case CaseKindExecutionError:
		return "execution-error"
	default:
		return fmt.Sprintf("CaseKind(%d)", int(k))
	}
}

// SourceInfo is an optional source location for a test case
type SourceInfo struct {
	File string
	Line int
}

// Traits are multi-valued key/value tags attached to a test case.
type Traits map[string][]string

// Add appends value to the trait name, ignoring duplicates.
func (t Traits) Add(name, value string) {
	for _, v := range t[name] {
		if v == value {
			return
		}
	}
	t[name] = append(t[name], value)
}

// Has reports whether the trait name carries value.
func (t Traits) Has(name, value string) bool {
	for _, v := range t[name] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// String renders traits in a stable order, e.g. "category=fast, owner=infra".
func (t Traits) String() string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		for _, v := range t[name] {
			parts = append(parts, name+"="+v)
		}
	}
	return strings.Join(parts, ", ")
}

// TestCase is the unit of discovery and reporting. A case may produce exactly
// one Test, or (when delay enumerated) one Test per data row found at run time.
type TestCase struct {
	Kind         CaseKind
	TestMethod   *TestMethod
	Arguments    []any          // concrete data row; nil for facts and delay-enumerated theories
	GenericTypes []reflect.Type // resolved generic type arguments, if any
	DisplayName  string
	Traits       Traits
	UniqueID     string
	Source       SourceInfo
	Timeout      time.Duration
	Explicit     bool
	ErrorMessage string // only for CaseKindExecutionError

	skipReason string
}

// NewTestCase creates a test case. The skip reason is fixed for the life of the case.
func NewTestCase(kind CaseKind, method *TestMethod, displayName, skipReason string) *TestCase {
	return &TestCase{
		Kind:        kind,
		TestMethod:  method,
		DisplayName: displayName,
		Traits:      make(Traits),
		skipReason:  skipReason,
	}
}

// SkipReason returns the reason the case is skipped, or "" when it runs.
func (tc *TestCase) SkipReason() string {
	return tc.skipReason
}

// Method returns the method descriptor the case runs.
func (tc *TestCase) Method() MethodInfo {
	return tc.TestMethod.Method
}

// TestClass returns the owning test class.
func (tc *TestCase) TestClass() *TestClass {
	return tc.TestMethod.TestClass
}

// TestCollection returns the owning test collection.
func (tc *TestCase) TestCollection() *TestCollection {
	return tc.TestMethod.TestClass.TestCollection
}

// Test is one concrete execution instance produced by a TestCase.
type Test struct {
	TestCase    *TestCase
	DisplayName string
	UniqueID    string
	Ordinal     int
}
