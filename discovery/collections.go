package discovery

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-testkit/types"
	"github.com/ethereum-optimism/infra/op-testkit/uniqueid"
)

// CollectionFactory assigns test classes to collections. A factory returns
// the same *TestCollection for every class in the same collection.
type CollectionFactory interface {
	DisplayName() string
	Get(class types.TypeInfo) *types.TestCollection
}

// NewCollectionFactory returns the factory for the given behavior.
func NewCollectionFactory(behavior types.CollectionBehavior, assembly *types.TestAssembly) CollectionFactory {
	if behavior == types.CollectionPerAssembly {
		return NewCollectionPerAssembly(assembly)
	}
	return NewCollectionPerClass(assembly)
}

type collectionCache struct {
	assembly    *types.TestAssembly
	definitions map[string]types.TypeInfo

	mu          sync.Mutex
	collections map[string]*types.TestCollection
}

func newCollectionCache(assembly *types.TestAssembly) *collectionCache {
	c := &collectionCache{
		assembly:    assembly,
		definitions: make(map[string]types.TypeInfo),
		collections: make(map[string]*types.TestCollection),
	}
	for _, t := range assembly.Assembly.Types() {
		if def, ok := types.FindAttribute[types.CollectionDefinitionAttribute](t.Attributes()); ok {
			c.definitions[def.Name] = t
		}
	}
	return c
}

func (c *collectionCache) get(name string) *types.TestCollection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if coll, ok := c.collections[name]; ok {
		return coll
	}
	def := c.definitions[name]
	defName := ""
	if def != nil {
		defName = def.Name()
	}
	coll := &types.TestCollection{
		TestAssembly: c.assembly,
		DisplayName:  name,
		Definition:   def,
		UniqueID:     uniqueid.ForTestCollection(c.assembly.UniqueID, name, defName),
	}
	c.collections[name] = coll
	return coll
}

func explicitCollection(class types.TypeInfo) (string, bool) {
	attr, ok := types.FindAttribute[types.CollectionAttribute](class.Attributes())
	if !ok || attr.Name == "" {
		return "", false
	}
	return attr.Name, true
}

// CollectionPerClass places every class without an explicit collection in its own collection.
type CollectionPerClass struct {
	cache *collectionCache
}

func NewCollectionPerClass(assembly *types.TestAssembly) *CollectionPerClass {
	return &CollectionPerClass{cache: newCollectionCache(assembly)}
}

func (f *CollectionPerClass) DisplayName() string { return "collection-per-class" }

func (f *CollectionPerClass) Get(class types.TypeInfo) *types.TestCollection {
	if name, ok := explicitCollection(class); ok {
		return f.cache.get(name)
	}
	return f.cache.get("Test collection for " + class.Name())
}

// CollectionPerAssembly places every class without an explicit collection in one shared collection.
type CollectionPerAssembly struct {
	cache *collectionCache
}

func NewCollectionPerAssembly(assembly *types.TestAssembly) *CollectionPerAssembly {
	return &CollectionPerAssembly{cache: newCollectionCache(assembly)}
}

func (f *CollectionPerAssembly) DisplayName() string { return "collection-per-assembly" }

func (f *CollectionPerAssembly) Get(class types.TypeInfo) *types.TestCollection {
	if name, ok := explicitCollection(class); ok {
		return f.cache.get(name)
	}
	return f.cache.get("Test collection for " + f.cache.assembly.Assembly.Name())
}
