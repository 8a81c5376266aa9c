package shadowstate

import (
	"sort"
	"sync"

	"irfan/internal/clock"
	"irfan/internal/fan"

	"github.com/google/uuid"
)

// historyLimit bounds the number of action records kept per device
const historyLimit = 20

// Tracker manages shadow state providers for all devices
type Tracker struct {
	mu        sync.RWMutex
	providers map[string]func() *DeviceShadowState
}

// NewTracker creates a new shadow state tracker
func NewTracker() *Tracker {
	return &Tracker{
		providers: make(map[string]func() *DeviceShadowState),
	}
}

// Register registers a function that provides a device's shadow state
func (t *Tracker) Register(deviceName string, provider func() *DeviceShadowState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.providers[deviceName] = provider
}

// Get retrieves a device's shadow state
func (t *Tracker) Get(deviceName string) (*DeviceShadowState, bool) {
	t.mu.RLock()
	provider, ok := t.providers[deviceName]
	t.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return provider(), true
}

// Names returns the registered device names, sorted
func (t *Tracker) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.providers))
	for name := range t.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAll retrieves all device shadow states
func (t *Tracker) GetAll() map[string]*DeviceShadowState {
	t.mu.RLock()
	providers := make(map[string]func() *DeviceShadowState, len(t.providers))
	for k, v := range t.providers {
		providers[k] = v
	}
	t.mu.RUnlock()

	states := make(map[string]*DeviceShadowState, len(providers))
	for k, provider := range providers {
		states[k] = provider()
	}
	return states
}

// DeviceTracker records committed transitions for one device
type DeviceTracker struct {
	mu    sync.RWMutex
	state *DeviceShadowState
	clock clock.Clock
}

// NewDeviceTracker creates a tracker for a device in the all-off state
func NewDeviceTracker(name, deviceType string, clk clock.Clock) *DeviceTracker {
	return &DeviceTracker{
		state: NewDeviceShadowState(name, deviceType, clk.Now()),
		clock: clk,
	}
}

// RecordCommit stores the committed fan state and appends an action record
func (dt *DeviceTracker) RecordCommit(c fan.Commit, reason string) {
	dt.record(c.State, ActionRecord{
		ActionType: c.Action,
		Reason:     reason,
		Dispatches: len(c.Results),
		Failures:   c.Failures(),
	})
}

// RecordMacro appends an action record for a macro press. Macros do not
// change the believed fan state
func (dt *DeviceTracker) RecordMacro(name string, ran bool) {
	dt.mu.RLock()
	current := dt.state.Outputs.State
	dt.mu.RUnlock()

	dt.record(current, ActionRecord{
		ActionType: "macro",
		Reason:     name,
		Details:    map[string]interface{}{"executed": ran},
	})
}

func (dt *DeviceTracker) record(s fan.State, rec ActionRecord) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	now := dt.clock.Now()
	rec.ID = uuid.NewString()
	rec.Timestamp = now

	dt.state.Outputs = FanOutputs{
		State:          s,
		Percentage:     s.Percentage(),
		PresetMode:     s.PresetMode(),
		LastActionTime: now,
	}
	dt.state.History = append(dt.state.History, rec)
	if len(dt.state.History) > historyLimit {
		dt.state.History = dt.state.History[len(dt.state.History)-historyLimit:]
	}
	last := rec
	dt.state.LastAction = &last
	dt.state.Metadata.LastUpdated = now
}

// GetState returns the current shadow state (thread-safe copy)
func (dt *DeviceTracker) GetState() *DeviceShadowState {
	dt.mu.RLock()
	defer dt.mu.RUnlock()

	stateCopy := &DeviceShadowState{
		Device:   dt.state.Device,
		Outputs:  dt.state.Outputs,
		History:  make([]ActionRecord, len(dt.state.History)),
		Metadata: dt.state.Metadata,
	}
	copy(stateCopy.History, dt.state.History)

	if dt.state.LastAction != nil {
		last := *dt.state.LastAction
		stateCopy.LastAction = &last
	}

	return stateCopy
}
