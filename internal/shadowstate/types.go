package shadowstate

import (
	"time"

	"irfan/internal/fan"
)

// StateMetadata contains metadata about the shadow state
type StateMetadata struct {
	LastUpdated time.Time `json:"lastUpdated"`
	DeviceName  string    `json:"deviceName"`
	DeviceType  string    `json:"deviceType"`
}

// ActionRecord represents a single committed transition
type ActionRecord struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	ActionType string                 `json:"actionType"` // "turn_on", "set_percentage", "macro", ...
	Reason     string                 `json:"reason,omitempty"`
	Dispatches int                    `json:"dispatches"`
	Failures   int                    `json:"failures"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// FanOutputs is the believed fan state plus the views derived from it
type FanOutputs struct {
	State          fan.State `json:"state"`
	Percentage     int       `json:"percentage"`
	PresetMode     string    `json:"presetMode"`
	LastActionTime time.Time `json:"lastActionTime"`
}

// DeviceShadowState represents the shadow state of one IR fan
type DeviceShadowState struct {
	Device     string         `json:"device"`
	Outputs    FanOutputs     `json:"outputs"`
	LastAction *ActionRecord  `json:"lastAction,omitempty"`
	History    []ActionRecord `json:"history"`
	Metadata   StateMetadata  `json:"metadata"`
}

// NewDeviceShadowState creates the all-off shadow state for a device
func NewDeviceShadowState(name, deviceType string, now time.Time) *DeviceShadowState {
	return &DeviceShadowState{
		Device: name,
		Outputs: FanOutputs{
			State:      fan.State{},
			PresetMode: fan.State{}.PresetMode(),
		},
		History: make([]ActionRecord, 0),
		Metadata: StateMetadata{
			LastUpdated: now,
			DeviceName:  name,
			DeviceType:  deviceType,
		},
	}
}
