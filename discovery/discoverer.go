// Package discovery turns test methods into test cases. Facts produce one
// case; theories are expanded into one case per data row when the rows can
// be enumerated and serialised up front, and into a single delay-enumerated
// case otherwise.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Options controls discovery behaviour.
type Options struct {
	// PreEnumerateTheories enumerates theory data during discovery.
	PreEnumerateTheories bool
	// DefaultTimeout applies to cases whose attribute sets no timeout.
	DefaultTimeout time.Duration
	Log            log.Logger
	// Diagnostics receives discovery warnings such as dropped duplicate rows.
	Diagnostics types.DiagnosticSink
}

func (o Options) logger() log.Logger {
	if o.Log == nil {
		return log.Root()
	}
	return o.Log
}

func (o Options) diagnostic(format string, args ...any) {
	o.logger().Warn(fmt.Sprintf(format, args...))
	if o.Diagnostics != nil {
		o.Diagnostics.Diagnostic(format, args...)
	}
}

// Discoverer produces the test cases for one method and the attribute that
// selected it.
type Discoverer interface {
	Discover(ctx context.Context, opts Options, method *types.TestMethod, attr types.Attribute) ([]*types.TestCase, error)
}
