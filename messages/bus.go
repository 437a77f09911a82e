package messages

import (
	"errors"
	"fmt"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("message bus is closed")

// Sink consumes messages. Returning false asks the run to stop as soon as
// possible; returning an error is fatal to the run.
type Sink interface {
	OnMessage(msg Message) (bool, error)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(msg Message) (bool, error)

func (f SinkFunc) OnMessage(msg Message) (bool, error) { return f(msg) }

// Bus is the channel runners publish events on. The boolean result reports
// whether the run should continue.
type Bus interface {
	Publish(msg Message) (bool, error)
}

// SynchronousBus delivers each message to its sink before Publish returns.
// Publishing is serialised, so the sink observes a single total order even
// when runners publish from several goroutines.
type SynchronousBus struct {
	mu     sync.Mutex
	sink   Sink
	closed bool
}

// NewBus returns a bus delivering to sink.
func NewBus(sink Sink) *SynchronousBus {
	return &SynchronousBus{sink: sink}
}

func (b *SynchronousBus) Publish(msg Message) (cont bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrBusClosed
	}
	defer func() {
		if r := recover(); r != nil {
			cont = false
			err = pkgerrors.Errorf("sink panicked handling %s: %v", Name(msg), r)
		}
	}()
	return b.sink.OnMessage(msg)
}

// Close stops delivery. Later publishes fail with ErrBusClosed.
func (b *SynchronousBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Multi fans messages out to every sink in order. The run continues only if
// every sink agrees; sink errors are joined.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(msg Message) (bool, error) {
		cont := true
		var errs []error
		for _, s := range sinks {
			ok, err := s.OnMessage(msg)
			if err != nil {
				errs = append(errs, fmt.Errorf("%T: %w", s, err))
			}
			cont = cont && ok
		}
		return cont, errors.Join(errs...)
	})
}

// Discard accepts every message.
var Discard Sink = SinkFunc(func(Message) (bool, error) { return true, nil })
