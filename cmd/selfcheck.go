package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testkit/descriptor"
	"github.com/ethereum-optimism/infra/op-testkit/serialization"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// The selfcheck assembly exercises the engine end to end: a collection
// fixture shared by two classes, a class fixture, theories with inline and
// function data, output capture, traits, skips and explicit tests.

// ledger is a collection fixture recording which classes touched it.
type ledger struct {
	mu      sync.Mutex
	entries []string
}

func (l *ledger) Record(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *ledger) Dispose() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return nil
}

// clock is a class fixture handing out monotonic ticks.
type clock struct {
	mu   sync.Mutex
	tick int
}

func (c *clock) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	return c.tick
}

type serializationChecks struct {
	out    types.TestOutput
	ledger *ledger
}

func (s *serializationChecks) RoundTrip(v any) error {
	s.ledger.Record("serialization")
	encoded, err := serialization.Serialize(v)
	if err != nil {
		return err
	}
	s.out.WriteLine("%T -> %s", v, encoded)
	decoded, err := serialization.Deserialize(encoded)
	if err != nil {
		return err
	}
	if fmt.Sprint(decoded) != fmt.Sprint(v) {
		return fmt.Errorf("round trip of %v returned %v", v, decoded)
	}
	return nil
}

func (s *serializationChecks) RejectsChannels() error {
	if serialization.IsSerializable(make(chan int)) {
		return errors.New("channels must not be serializable")
	}
	return nil
}

type lifecycleChecks struct {
	out    types.TestOutput
	ledger *ledger
	clock  *clock
}

func (l *lifecycleChecks) FixturesAreShared() error {
	l.ledger.Record("lifecycle")
	if l.clock == nil {
		return errors.New("class fixture was not injected")
	}
	l.out.WriteLine("tick %d", l.clock.Next())
	return nil
}

func (l *lifecycleChecks) HonorsCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}

func (l *lifecycleChecks) Upper(in, want string) error {
	if got := strings.ToUpper(in); got != want {
		return fmt.Errorf("ToUpper(%q) = %q, want %q", in, got, want)
	}
	return nil
}

func (l *lifecycleChecks) InjectedFailure() error {
	return errors.New("injected failure")
}

// selfcheckAssembly builds the assembly. With injectFailure set it carries
// one test that always fails.
func selfcheckAssembly(injectFailure bool) *descriptor.Assembly {
	ledgerFixture := descriptor.NewClass("Ledger", func() *ledger { return &ledger{} })
	clockFixture := descriptor.NewClass("Clock", func() *clock { return &clock{} })
	shared := descriptor.NewDefinition("SharedLedger", types.CollectionDefinitionAttribute{Name: "ledger"}, ledgerFixture)

	serializationClass := descriptor.NewClass("Serialization",
		func(out types.TestOutput, l *ledger) *serializationChecks {
			return &serializationChecks{out: out, ledger: l}
		}).
		Attr(types.CollectionAttribute{Name: "ledger"}, types.TraitAttribute{Name: "area", Value: "serialization"}).
		Theory("RoundTrip", (*serializationChecks).RoundTrip, descriptor.Params("value"), descriptor.With(
			types.InlineData(int64(42)),
			types.InlineData("text"),
			types.InlineData(true),
			types.InlineData(1.5),
		)).
		Fact("RejectsChannels", (*serializationChecks).RejectsChannels)

	lifecycle := descriptor.NewClass("Lifecycle",
		func(out types.TestOutput, l *ledger, c *clock) *lifecycleChecks {
			return &lifecycleChecks{out: out, ledger: l, clock: c}
		}).
		Attr(
			types.CollectionAttribute{Name: "ledger"},
			types.ClassFixtureAttribute{Fixture: clockFixture},
			types.TraitAttribute{Name: "area", Value: "lifecycle"},
		).
		Fact("FixturesAreShared", (*lifecycleChecks).FixturesAreShared).
		Fact("HonorsCancellation", (*lifecycleChecks).HonorsCancellation, descriptor.With(types.FactAttribute{Timeout: 5 * time.Second})).
		Theory("Upper", (*lifecycleChecks).Upper, descriptor.Params("in", "want"), descriptor.With(types.FuncDataAttribute{
			Name: "words",
			Func: func() ([][]any, error) {
				return [][]any{{"a", "A"}, {"testkit", "TESTKIT"}}, nil
			},
		})).
		Fact("Unsupported", (*lifecycleChecks).FixturesAreShared, descriptor.With(types.FactAttribute{Skip: "demonstrates skipping"})).
		Fact("Manual", (*lifecycleChecks).FixturesAreShared, descriptor.With(types.FactAttribute{Explicit: true}))
	if injectFailure {
		lifecycle.Fact("InjectedFailure", (*lifecycleChecks).InjectedFailure)
	}

	return descriptor.NewAssembly("selfcheck", "op-testkit/selfcheck").Add(shared, serializationClass, lifecycle)
}
