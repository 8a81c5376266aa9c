package dispatch

import (
	"context"
	"sync"

	"irfan/internal/codes"
)

// SentPayload records one payload handed to a Recorder.
type SentPayload struct {
	Device  string
	Payload codes.ActionCode
}

// Recorder is an in-memory Actuator for tests. It records every payload it
// is given, including ones it then fails.
type Recorder struct {
	mu   sync.Mutex
	sent []SentPayload

	// FailWith, if set, is returned from every Send.
	FailWith error

	// FailPayloads fails only the listed payloads.
	FailPayloads map[codes.ActionCode]error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{FailPayloads: make(map[codes.ActionCode]error)}
}

// Send records the payload and returns the configured failure, if any.
func (r *Recorder) Send(_ context.Context, device string, payload codes.ActionCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, SentPayload{Device: device, Payload: payload})
	if r.FailWith != nil {
		return r.FailWith
	}
	if err, ok := r.FailPayloads[payload]; ok {
		return err
	}
	return nil
}

// Payloads returns the recorded payloads in send order.
func (r *Recorder) Payloads() []codes.ActionCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]codes.ActionCode, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.Payload)
	}
	return out
}

// Calls returns a copy of every recorded send.
func (r *Recorder) Calls() []SentPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SentPayload, len(r.sent))
	copy(out, r.sent)
	return out
}

// Reset clears the recorded payloads.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
