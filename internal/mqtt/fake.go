package mqtt

import "sync"

// Message is one recorded publish
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakePublisher records messages instead of sending them. Used in tests
type FakePublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewFakePublisher creates an empty fake publisher
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the message. When a failure is set the message is still
// recorded and the error returned
func (f *FakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := make([]byte, len(payload))
	copy(p, payload)
	f.messages = append(f.messages, Message{Topic: topic, QoS: qos, Retained: retained, Payload: p})
	return f.err
}

// FailWith makes subsequent publishes return err (nil clears it)
func (f *FakePublisher) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Messages returns a copy of all recorded messages
func (f *FakePublisher) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// Last returns the most recent message published to topic
func (f *FakePublisher) Last(topic string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].Topic == topic {
			return f.messages[i], true
		}
	}
	return Message{}, false
}

// Reset clears recorded messages
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = nil
}
