package messages

import "sync"

// Recorder is a sink that keeps every message it receives. It can be told to
// request a stop or fail after a given message type.
type Recorder struct {
	mu       sync.Mutex
	messages []Message

	// StopOn, when set, makes OnMessage return false for matching messages.
	StopOn func(Message) bool
	// FailOn, when set, makes OnMessage return the error for matching messages.
	FailOn func(Message) error
}

func (r *Recorder) OnMessage(msg Message) (bool, error) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	if r.FailOn != nil {
		if err := r.FailOn(msg); err != nil {
			return false, err
		}
	}
	if r.StopOn != nil && r.StopOn(msg) {
		return false, nil
	}
	return true, nil
}

// Messages returns the recorded messages in delivery order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Names returns the short type names of the recorded messages.
func (r *Recorder) Names() []string {
	msgs := r.Messages()
	names := make([]string, len(msgs))
	for i, m := range msgs {
		names[i] = Name(m)
	}
	return names
}

// OfType returns the recorded messages of type T.
func OfType[T Message](r *Recorder) []T {
	var out []T
	for _, m := range r.Messages() {
		if t, ok := m.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
