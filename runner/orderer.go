package runner

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// DefaultOrderer orders cases by a hash of the run seed and the case ID.
// The order is stable for a given seed but unrelated to declaration order,
// so tests that depend on running after one another fail early.
type DefaultOrderer struct {
	seed [8]byte
}

var _ types.TestCaseOrderer = (*DefaultOrderer)(nil)

// NewDefaultOrderer returns an orderer for the given run seed.
func NewDefaultOrderer(seed uint64) *DefaultOrderer {
	o := &DefaultOrderer{}
	binary.LittleEndian.PutUint64(o.seed[:], seed)
	return o
}

func (o *DefaultOrderer) OrderTestCases(cases []*types.TestCase) ([]*types.TestCase, error) {
	keys := make(map[*types.TestCase]uint64, len(cases))
	for _, tc := range cases {
		keys[tc] = o.key(tc.UniqueID)
	}
	ordered := make([]*types.TestCase, len(cases))
	copy(ordered, cases)
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := keys[ordered[i]], keys[ordered[j]]
		if ki != kj {
			return ki < kj
		}
		return ordered[i].UniqueID < ordered[j].UniqueID
	})
	return ordered, nil
}

func (o *DefaultOrderer) key(id string) uint64 {
	h := sha1.New()
	h.Write(o.seed[:])
	h.Write([]byte(id))
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// orderCases applies orderer. An orderer that fails, panics or loses cases
// leaves the declaration order in place; the failure is logged and reported
// through diag.
func orderCases(lgr log.Logger, diag types.DiagnosticSink, orderer types.TestCaseOrderer, cases []*types.TestCase) []*types.TestCase {
	ordered, err := safeOrder(orderer, cases)
	if err == nil && len(ordered) != len(cases) {
		err = fmt.Errorf("returned %d test cases, expected %d", len(ordered), len(cases))
	}
	if err != nil {
		lgr.Error("Test case orderer failed, keeping declaration order", "orderer", fmt.Sprintf("%T", orderer), "err", err)
		diag.Diagnostic("Test case orderer '%T' threw during ordering: %v", orderer, err)
		return cases
	}
	return ordered
}

func safeOrder(orderer types.TestCaseOrderer, cases []*types.TestCase) (ordered []*types.TestCase, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = aggregator.Recovered(r)
		}
	}()
	input := make([]*types.TestCase, len(cases))
	copy(input, cases)
	return orderer.OrderTestCases(input)
}

// groupBy partitions cases by key, keeping the order in which each key
// first appears.
func groupBy[K comparable](cases []*types.TestCase, key func(*types.TestCase) K) [][]*types.TestCase {
	index := make(map[K]int)
	var groups [][]*types.TestCase
	for _, tc := range cases {
		k := key(tc)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], tc)
	}
	return groups
}

func byMethod(tc *types.TestCase) *types.TestMethod         { return tc.TestMethod }
func byClass(tc *types.TestCase) *types.TestClass           { return tc.TestClass() }
func byCollection(tc *types.TestCase) *types.TestCollection { return tc.TestCollection() }
