package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/metrics"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// scope describes the events of one bracketed runner level.
type scope struct {
	level          string
	ids            messages.IDs
	hooks          Hooks
	starting       messages.Message
	finished       func(summary types.RunSummary) messages.Message
	cleanupFailure func(failure messages.FailureInfo) messages.Message
}

// bracket publishes the starting event, runs body, releases the scope's
// resources and publishes the finished event.
//
// Nothing is published and body never runs when ctx is already cancelled or
// the starting event cannot be published. Once the starting event is out,
// the finished event is always attempted, even when body returns an error.
// release runs with a context that is not cancelled by the run.
func (s *runState) bracket(
	ctx context.Context,
	sc scope,
	agg *aggregator.Aggregator,
	body func(ctx context.Context) (types.RunSummary, error),
	release func(ctx context.Context, cleanup *aggregator.Aggregator),
) (types.RunSummary, error) {
	if ctx.Err() != nil {
		s.log.Debug("Run cancelled, not starting scope", "scope", sc.level, "cause", context.Cause(ctx))
		return types.RunSummary{}, nil
	}
	if err := s.publish(sc.starting); err != nil {
		return types.RunSummary{}, err
	}

	if sc.hooks.AfterStarting != nil {
		agg.RunContext(ctx, sc.hooks.AfterStarting)
	}

	summary, err := body(ctx)

	cleanup := aggregator.New()
	cleanupCtx := context.WithoutCancel(ctx)
	if sc.hooks.BeforeFinished != nil {
		cleanup.Run(func() error { return sc.hooks.BeforeFinished(cleanupCtx) })
	}
	if release != nil {
		release(cleanupCtx, cleanup)
	}
	if cerr := s.reportCleanup(sc, summary, cleanup.ToError()); cerr != nil {
		err = errors.Join(err, cerr)
	}

	if ferr := s.publish(sc.finished(summary)); ferr != nil {
		err = errors.Join(err, ferr)
	}
	metrics.RecordScope(sc.level, summary)
	return summary, err
}

// reportCleanup publishes a cleanup failure for the scope. When tests in the
// scope already failed the failure is published as a diagnostic instead.
func (s *runState) reportCleanup(sc scope, summary types.RunSummary, err error) error {
	if err == nil {
		return nil
	}
	metrics.RecordCleanupFailure(sc.level)
	if summary.Failed == 0 {
		s.log.Warn("Cleanup failed", "scope", sc.level, "err", err)
		return s.publish(sc.cleanupFailure(messages.NewFailureInfo(err)))
	}
	s.log.Warn("Cleanup failed in a scope with failed tests", "scope", sc.level, "failed", summary.Failed, "err", err)
	return s.publish(&messages.DiagnosticMessage{
		IDs:     sc.ids,
		Message: fmt.Sprintf("%s cleanup failure: %v", sc.level, err),
	})
}
