// Package dispatch sends single infrared payloads through an external
// actuator. Sends are fire-and-forget: one attempt, no retry, and the outcome
// is reported as a Result that callers log through Absorb and never propagate.
package dispatch

import (
	"context"
	"fmt"

	"irfan/internal/codes"

	"go.uber.org/zap"
)

// Actuator is the external IR blaster. Send emits one payload through the
// blaster identified by device. Implementations must not retry.
type Actuator interface {
	Send(ctx context.Context, device string, payload codes.ActionCode) error
}

// ActuatorFunc adapts a plain function to the Actuator interface.
type ActuatorFunc func(ctx context.Context, device string, payload codes.ActionCode) error

// Send calls f.
func (f ActuatorFunc) Send(ctx context.Context, device string, payload codes.ActionCode) error {
	return f(ctx, device, payload)
}

// Outcome classifies what happened to a single dispatch.
type Outcome int

const (
	// Sent means the actuator accepted the payload. It does not mean the
	// device received it.
	Sent Outcome = iota
	// Unconfigured means the key has no code; nothing was sent.
	Unconfigured
	// Failed means the actuator returned an error.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Unconfigured:
		return "unconfigured"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one dispatch attempt.
type Result struct {
	Key     codes.Key
	Outcome Outcome
	Err     error
}

// Dispatcher resolves primitive keys through a code table and sends the
// resulting payload to one blaster.
type Dispatcher struct {
	table    *codes.Table
	actuator Actuator
	device   string
	logger   *zap.Logger
}

// New creates a Dispatcher bound to the blaster referenced by device.
func New(table *codes.Table, actuator Actuator, device string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		table:    table,
		actuator: actuator,
		device:   device,
		logger:   logger.Named("dispatch"),
	}
}

// Send looks key up and emits it once. Actuator errors and panics become a
// Failed result. It never retries.
func (d *Dispatcher) Send(ctx context.Context, key codes.Key) (res Result) {
	code, ok := d.table.Lookup(key)
	if !ok {
		return Result{Key: key, Outcome: Unconfigured}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{Key: key, Outcome: Failed, Err: fmt.Errorf("actuator panic: %v", r)}
		}
	}()

	if err := d.actuator.Send(ctx, d.device, code); err != nil {
		return Result{Key: key, Outcome: Failed, Err: err}
	}
	return Result{Key: key, Outcome: Sent}
}

// Fire sends key and absorbs the result.
func (d *Dispatcher) Fire(ctx context.Context, key codes.Key) Result {
	res := d.Send(ctx, key)
	Absorb(d.logger, d.device, res)
	return res
}

// Absorb logs a dispatch result and swallows it. Unconfigured keys are a
// warning, actuator failures an error. Nothing is returned to the caller:
// a transition always completes.
func Absorb(logger *zap.Logger, device string, res Result) {
	switch res.Outcome {
	case Sent:
		logger.Debug("Sent IR code",
			zap.String("device", device),
			zap.String("key", string(res.Key)))
	case Unconfigured:
		logger.Warn("IR code not configured, skipping",
			zap.String("device", device),
			zap.String("key", string(res.Key)))
	case Failed:
		logger.Error("Failed to send IR code",
			zap.String("device", device),
			zap.String("key", string(res.Key)),
			zap.Error(res.Err))
	}
}
