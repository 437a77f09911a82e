// Package uniqueid computes the deterministic identifiers that tie every
// event to its place in the assembly/collection/class/method/case/test chain.
// The same inputs always yield the same ID, across runs and processes.
package uniqueid

import (
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"strconv"

	"github.com/google/uuid"
)

// collectionNamespace scopes collection IDs so they never collide with
// UUIDs generated for other purposes.
var collectionNamespace = uuid.MustParse("0e0f5c9a-6a5c-4d1e-9b8f-3f8f1f5c2a71")

// Generator hashes a sequence of string inputs. Each input is terminated by a
// NUL byte so that ("ab","c") and ("a","bc") produce different IDs.
type Generator struct {
	h        hash.Hash
	computed bool
}

// New returns an empty generator.
func New() *Generator {
	return &Generator{h: sha1.New()}
}

// Add appends value to the hashed input.
func (g *Generator) Add(value string) *Generator {
	if g.computed {
		panic("uniqueid: Add called after Compute")
	}
	g.h.Write([]byte(value))
	g.h.Write([]byte{0})
	return g
}

// Compute returns the lowercase hex SHA-1 of the inputs. A generator can be
// computed only once.
func (g *Generator) Compute() string {
	if g.computed {
		panic("uniqueid: Compute called twice")
	}
	g.computed = true
	return hex.EncodeToString(g.h.Sum(nil))
}

func compute(values ...string) string {
	g := New()
	for _, v := range values {
		g.Add(v)
	}
	return g.Compute()
}

// ForAssembly returns the ID of an assembly.
func ForAssembly(assemblyName, assemblyPath, configFile string) string {
	return compute(assemblyName, assemblyPath, configFile)
}

// ForTestCollection returns a GUID-like ID for a collection.
func ForTestCollection(assemblyID, displayName, definitionName string) string {
	return uuid.NewSHA1(collectionNamespace, []byte(assemblyID+"\x00"+displayName+"\x00"+definitionName)).String()
}

// ForTestClass returns the ID of a test class within a collection.
func ForTestClass(collectionID, className string) string {
	return compute(collectionID, className)
}

// ForTestMethod returns the ID of a method within a test class.
func ForTestMethod(classID, methodName string) string {
	return compute(classID, methodName)
}

// ForTestCase returns the ID of a test case. genericTypes are the resolved
// type names and serializedArgs the canonical argument encodings; both may be
// empty.
func ForTestCase(methodID string, genericTypes, serializedArgs []string) string {
	g := New().Add(methodID)
	g.Add(strconv.Itoa(len(genericTypes)))
	for _, t := range genericTypes {
		g.Add(t)
	}
	g.Add(strconv.Itoa(len(serializedArgs)))
	for _, a := range serializedArgs {
		g.Add(a)
	}
	return g.Compute()
}

// ForTest returns the ID of the ordinal-th test produced by a test case.
func ForTest(testCaseID string, ordinal int) string {
	return compute(testCaseID, strconv.Itoa(ordinal))
}
