package types

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// TestAssembly is the unit under test. It is immutable after construction.
type TestAssembly struct {
	Assembly   AssemblyInfo
	ConfigFile string
	Version    string
	UniqueID   string
}

// NewTestAssembly validates the version (semantic version, "v" prefix optional)
// and returns an assembly wrapper. An empty version is allowed.
func NewTestAssembly(assembly AssemblyInfo, configFile, version, uniqueID string) (*TestAssembly, error) {
	if assembly == nil {
		return nil, fmt.Errorf("assembly cannot be nil")
	}
	if version != "" {
		v := version
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if !semver.IsValid(v) {
			return nil, fmt.Errorf("invalid assembly version %q", version)
		}
		version = semver.Canonical(v)
	}
	return &TestAssembly{
		Assembly:   assembly,
		ConfigFile: configFile,
		Version:    version,
		UniqueID:   uniqueID,
	}, nil
}

// TestCollection groups classes that share collection fixtures.
type TestCollection struct {
	TestAssembly *TestAssembly
	DisplayName  string
	Definition   TypeInfo // nil when no definition type declares the collection
	UniqueID     string
}

// DefinitionAttribute returns the collection definition attribute, if any.
func (c *TestCollection) DefinitionAttribute() (CollectionDefinitionAttribute, bool) {
	if c.Definition == nil {
		return CollectionDefinitionAttribute{}, false
	}
	return FindAttribute[CollectionDefinitionAttribute](c.Definition.Attributes())
}

// TestClass is a class within a collection.
type TestClass struct {
	TestCollection *TestCollection
	Class          TypeInfo
	UniqueID       string
}

// TestMethod is a method within a test class.
type TestMethod struct {
	TestClass *TestClass
	Method    MethodInfo
	UniqueID  string
}

// FullName returns "Class.Method".
func (m *TestMethod) FullName() string {
	return m.TestClass.Class.Name() + "." + m.Method.Name()
}
