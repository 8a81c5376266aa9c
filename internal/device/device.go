// Package device coordinates one IR fan: it owns the code table, dispatcher,
// shadow state and macro presser, and runs intents one at a time on a
// dedicated worker goroutine.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"irfan/internal/clock"
	"irfan/internal/codes"
	"irfan/internal/dispatch"
	"irfan/internal/fan"
	"irfan/internal/macro"
	"irfan/internal/shadowstate"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ErrStopped is returned for intents submitted after the device stopped
var ErrStopped = errors.New("device stopped")

// Snapshot is a read-only view of a device's believed state
type Snapshot struct {
	Name        string    `json:"name"`
	DeviceType  string    `json:"device_type"`
	Transport   string    `json:"transport"`
	State       fan.State `json:"state"`
	IsOn        bool      `json:"is_on"`
	Percentage  int       `json:"percentage"`
	PresetMode  string    `json:"preset_mode"`
	PresetModes []string  `json:"preset_modes"`
	Macros      []string  `json:"macros"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Listener receives snapshots after every commit and on every poll.
// Listeners run on the device worker and must not submit intents
type Listener func(Snapshot)

// Options configures a Device
type Options struct {
	Name           string
	DeviceType     string
	Transport      string
	Blaster        string
	Table          *codes.Table
	Template       macro.Value
	Actuator       dispatch.Actuator
	Runner         macro.Runner
	UpdateInterval time.Duration
	Clock          clock.Clock
	Logger         *zap.Logger
}

type request struct {
	intent string
	ctx    context.Context
	run    func(ctx context.Context)
	done   chan struct{}
}

// Device is one coordinated IR fan
type Device struct {
	name       string
	deviceType string
	transport  string
	interval   time.Duration
	macros     []string

	fan     *fan.Fan
	presser *macro.Presser
	tracker *shadowstate.DeviceTracker
	clock   clock.Clock
	logger  *zap.Logger

	mu        sync.RWMutex
	state     fan.State
	updatedAt time.Time
	listeners []Listener

	// current is the intent being executed; only touched by the worker
	current string

	intents   chan *request
	stopped   chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a device in the all-off state. Call Start before submitting
// intents
func New(opts Options) *Device {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	logger := opts.Logger.Named("device").With(zap.String("device", opts.Name))

	d := &Device{
		name:       opts.Name,
		deviceType: opts.DeviceType,
		transport:  opts.Transport,
		interval:   opts.UpdateInterval,
		macros: lo.Map(opts.Table.Macros(), func(m codes.Macro, _ int) string {
			return m.Name
		}),
		tracker:   shadowstate.NewDeviceTracker(opts.Name, opts.DeviceType, clk),
		clock:     clk,
		logger:    logger,
		updatedAt: clk.Now(),
		intents:   make(chan *request),
		stopped:   make(chan struct{}),
	}

	dispatcher := dispatch.New(opts.Table, opts.Actuator, opts.Blaster, opts.Logger)
	d.fan = fan.New(dispatcher, logger)
	d.fan.Observe(d.onCommit)
	d.presser = macro.NewPresser(opts.Table, opts.Template, opts.Runner, logger)

	return d
}

// Name returns the device name
func (d *Device) Name() string {
	return d.name
}

// Interval returns how often the snapshot is re-published
func (d *Device) Interval() time.Duration {
	return d.interval
}

// AddListener registers l. Register listeners before Start
func (d *Device) AddListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Start launches the worker goroutine
func (d *Device) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run()
		d.logger.Info("Device started")
	})
}

// Stop stops the worker after the running intent, if any, completes.
// Later submissions return ErrStopped
func (d *Device) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopped)
		d.wg.Wait()
		d.logger.Info("Device stopped")
	})
}

func (d *Device) run() {
	defer d.wg.Done()
	for {
		select {
		case req := <-d.intents:
			d.execute(req)
		case <-d.stopped:
			return
		}
	}
}

func (d *Device) execute(req *request) {
	defer close(req.done)
	d.current = req.intent
	defer func() { d.current = "" }()

	d.logger.Debug("Executing intent", zap.String("intent", req.intent))
	req.run(req.ctx)
}

// submit hands fn to the worker and waits for it to finish. If ctx ends
// first, submit returns ctx.Err() and an intent that was already accepted
// still runs to completion
func (d *Device) submit(ctx context.Context, intent string, fn func(ctx context.Context)) error {
	select {
	case <-d.stopped:
		return ErrStopped
	default:
	}

	req := &request{
		intent: intent,
		ctx:    context.WithoutCancel(ctx),
		run:    fn,
		done:   make(chan struct{}),
	}

	select {
	case d.intents <- req:
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TurnOn powers the fan on, optionally applying preset
func (d *Device) TurnOn(ctx context.Context, preset string) error {
	return d.submit(ctx, "turn_on", func(ctx context.Context) {
		d.fan.TurnOn(ctx, preset)
	})
}

// TurnOff powers the fan off
func (d *Device) TurnOff(ctx context.Context) error {
	return d.submit(ctx, "turn_off", d.fan.TurnOff)
}

// SetPercentage moves the fan to the bucket for percentage
func (d *Device) SetPercentage(ctx context.Context, percentage int) error {
	return d.submit(ctx, "set_percentage", func(ctx context.Context) {
		d.fan.SetPercentage(ctx, percentage)
	})
}

// SetPresetMode applies a named preset
func (d *Device) SetPresetMode(ctx context.Context, preset string) error {
	return d.submit(ctx, "set_preset_mode", func(ctx context.Context) {
		d.fan.SetPresetMode(ctx, preset)
	})
}

// SetOscillating toggles oscillation and records on
func (d *Device) SetOscillating(ctx context.Context, on bool) error {
	return d.submit(ctx, "oscillate", func(ctx context.Context) {
		d.fan.SetOscillating(ctx, on)
	})
}

// SetHeat switches the heater
func (d *Device) SetHeat(ctx context.Context, on bool) error {
	return d.submit(ctx, "set_heat", func(ctx context.Context) {
		d.fan.SetHeat(ctx, on)
	})
}

// PressMacro runs the named macro and reports whether its actions were
// handed to the runner. When ctx ends first the press still completes on the
// worker and false is returned with the context error
func (d *Device) PressMacro(ctx context.Context, name string) (bool, error) {
	result := make(chan bool, 1)
	err := d.submit(ctx, "press_macro", func(ctx context.Context) {
		_, ran := d.presser.Press(ctx, name)
		d.tracker.RecordMacro(name, ran)
		result <- ran
	})
	if err != nil {
		return false, err
	}
	return <-result, nil
}

func (d *Device) onCommit(c fan.Commit) {
	d.tracker.RecordCommit(c, d.current)

	d.mu.Lock()
	d.state = c.State
	d.updatedAt = d.clock.Now()
	d.mu.Unlock()

	d.notify()
}

// Refresh re-publishes the current snapshot to listeners. It is queued
// behind pending intents like any other request
func (d *Device) Refresh(ctx context.Context) error {
	return d.submit(ctx, "refresh", func(context.Context) {
		d.notify()
	})
}

func (d *Device) notify() {
	snap := d.Snapshot()

	d.mu.RLock()
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}

// Snapshot returns the state as of the last completed commit
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Snapshot{
		Name:        d.name,
		DeviceType:  d.deviceType,
		Transport:   d.transport,
		State:       d.state,
		IsOn:        d.state.Power,
		Percentage:  d.state.Percentage(),
		PresetMode:  d.state.PresetMode(),
		PresetModes: append([]string(nil), fan.Presets...),
		Macros:      append([]string(nil), d.macros...),
		UpdatedAt:   d.updatedAt,
	}
}

// Percentage returns the believed speed percentage
func (d *Device) Percentage() int {
	return d.Snapshot().Percentage
}

// PresetMode returns the believed preset name
func (d *Device) PresetMode() string {
	return d.Snapshot().PresetMode
}

// IsOn reports whether the fan is believed to be on
func (d *Device) IsOn() bool {
	return d.Snapshot().IsOn
}

// ShadowState returns the device's shadow state with its action history
func (d *Device) ShadowState() *shadowstate.DeviceShadowState {
	return d.tracker.GetState()
}
