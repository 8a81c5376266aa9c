// Package fan is the shadow state machine for an IR-controlled fan. It turns
// intents into ordered IR dispatches and commits an optimistic belief of the
// device state once a transition's dispatches have all been issued.
//
// A Fan has no transition lock. Callers must run at most one transition per
// Fan at a time; see internal/device for the queue that guarantees it.
package fan

import (
	"context"

	"irfan/internal/codes"
	"irfan/internal/dispatch"

	"go.uber.org/zap"
)

// Sender emits one primitive key and absorbs the outcome.
type Sender interface {
	Fire(ctx context.Context, key codes.Key) dispatch.Result
}

// Commit describes one committed transition.
type Commit struct {
	Action  string
	State   State
	Results []dispatch.Result
}

// Failures counts dispatches in the commit that did not reach the actuator
// because it returned an error.
func (c Commit) Failures() int {
	n := 0
	for _, r := range c.Results {
		if r.Outcome == dispatch.Failed {
			n++
		}
	}
	return n
}

// Observer is notified after every commit.
type Observer func(Commit)

// Fan holds the shadow state of one device.
type Fan struct {
	sender    Sender
	state     State
	observers []Observer
	logger    *zap.Logger
}

// New creates a Fan in the all-off state.
func New(sender Sender, logger *zap.Logger) *Fan {
	return &Fan{
		sender: sender,
		logger: logger.Named("fan"),
	}
}

// State returns the current belief.
func (f *Fan) State() State {
	return f.state
}

// Observe registers fn to run after every commit.
func (f *Fan) Observe(fn Observer) {
	f.observers = append(f.observers, fn)
}

// transition accumulates the dispatches of one intent and the state it will
// commit.
type transition struct {
	action  string
	next    State
	results []dispatch.Result
}

func (f *Fan) begin(action string) *transition {
	return &transition{action: action, next: f.state}
}

func (f *Fan) fire(ctx context.Context, t *transition, key codes.Key) {
	t.results = append(t.results, f.sender.Fire(ctx, key))
}

func (f *Fan) commit(t *transition) {
	f.state = t.next
	c := Commit{Action: t.action, State: t.next, Results: t.results}

	f.logger.Debug("Committed shadow state",
		zap.String("action", t.action),
		zap.Bool("power", t.next.Power),
		zap.Int("speed", t.next.Speed),
		zap.Bool("oscillating", t.next.Oscillating),
		zap.Bool("heat", t.next.Heat),
		zap.Int("dispatches", len(t.results)),
		zap.Int("failures", c.Failures()))

	for _, fn := range f.observers {
		fn(c)
	}
}

// TurnOn powers the fan on. When preset is non-empty the preset is applied
// as a follow-up transition.
func (f *Fan) TurnOn(ctx context.Context, preset string) {
	t := f.begin("turn_on")
	f.powerOn(ctx, t)
	f.commit(t)

	if preset != "" {
		f.SetPresetMode(ctx, preset)
	}
}

// TurnOff powers the fan off and resets speed. Oscillation and heat flags are
// kept, so a later turn-on resumes the prior mode like the physical remote.
func (f *Fan) TurnOff(ctx context.Context) {
	t := f.begin("turn_off")
	f.fire(ctx, t, codes.PowerOff)
	t.next.Power = false
	t.next.Speed = SpeedOff
	f.commit(t)
}

// SetPercentage moves the fan to the bucket for percentage by emitting
// relative speed steps. 0 turns the fan off. An off fan is powered on first.
func (f *Fan) SetPercentage(ctx context.Context, percentage int) {
	if percentage <= 0 {
		f.TurnOff(ctx)
		return
	}
	f.setSpeed(ctx, "set_percentage", Quantize(percentage))
}

// SetPresetMode applies a named preset. Unknown names are ignored.
func (f *Fan) SetPresetMode(ctx context.Context, preset string) {
	target, ok := presetSpeed(preset)
	if !ok {
		f.logger.Warn("Unknown preset mode, ignoring", zap.String("preset", preset))
		return
	}
	if target == SpeedOff {
		f.TurnOff(ctx)
		return
	}
	f.setSpeed(ctx, "set_preset_mode", target)
}

// SetOscillating sends the oscillation toggle and records on as the new
// belief. The remote has no discrete on/off, so a device that is already out
// of sync stays out of sync.
func (f *Fan) SetOscillating(ctx context.Context, on bool) {
	t := f.begin("oscillate")
	f.fire(ctx, t, codes.OscillateToggle)
	t.next.Oscillating = on
	f.commit(t)
}

// SetHeat sends heat on or heat off. Devices without heat codes skip the send
// but still record the requested mode.
func (f *Fan) SetHeat(ctx context.Context, on bool) {
	t := f.begin("set_heat")
	key := codes.HeatOff
	if on {
		key = codes.HeatOn
	}
	f.fire(ctx, t, key)
	t.next.Heat = on
	f.commit(t)
}

func (f *Fan) powerOn(ctx context.Context, t *transition) {
	f.fire(ctx, t, codes.PowerOn)
	t.next.Power = true
}

func (f *Fan) setSpeed(ctx context.Context, action string, target int) {
	t := f.begin(action)
	if !t.next.Power {
		f.powerOn(ctx, t)
	}

	current := t.next.Percentage()
	key := codes.SpeedUp
	if target < current {
		key = codes.SpeedDown
	}
	for i := 0; i < steps(current, target); i++ {
		f.fire(ctx, t, key)
	}

	t.next.Speed = target
	f.commit(t)
}
