package runner

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
)

// failurePolicyBus cancels the run once maxFailures tests have failed. Tests
// already running finish normally.
type failurePolicyBus struct {
	next        messages.Bus
	maxFailures int64
	failed      atomic.Int64
	cancel      context.CancelCauseFunc
	log         log.Logger
}

var _ messages.Bus = (*failurePolicyBus)(nil)

func newFailurePolicyBus(next messages.Bus, maxFailures int, cancel context.CancelCauseFunc, lgr log.Logger) messages.Bus {
	if maxFailures <= 0 {
		return next
	}
	return &failurePolicyBus{next: next, maxFailures: int64(maxFailures), cancel: cancel, log: lgr}
}

func (b *failurePolicyBus) Publish(msg messages.Message) (bool, error) {
	cont, err := b.next.Publish(msg)
	if _, ok := msg.(*messages.TestFailed); ok {
		if n := b.failed.Add(1); n == b.maxFailures {
			b.log.Warn("Failure limit reached, stopping run", "maxFailures", b.maxFailures)
			b.cancel(ErrMaxFailures)
		}
	}
	return cont, err
}
