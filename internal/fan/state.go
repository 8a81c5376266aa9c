package fan

// Speed buckets. The remote only knows relative steps, so every percentage is
// held as one of these four levels.
const (
	SpeedOff    = 0
	SpeedLow    = 33
	SpeedMedium = 66
	SpeedHigh   = 100

	stepSize = 33
)

// Preset names.
const (
	PresetOff    = "Off"
	PresetLow    = "Low"
	PresetMedium = "Medium"
	PresetHigh   = "High"
)

// Presets lists the preset modes in speed order.
var Presets = []string{PresetOff, PresetLow, PresetMedium, PresetHigh}

// State is what we believe the physical fan is doing. It is never read back
// from the device.
type State struct {
	Power       bool `json:"power"`
	Speed       int  `json:"speed"`
	Oscillating bool `json:"oscillating"`
	Heat        bool `json:"heat"`
}

// Quantize maps a percentage onto its speed bucket: 0 stays 0, (0,33] is
// 33, (33,66] is 66 and anything above is 100. Negative input is 0.
func Quantize(percentage int) int {
	switch {
	case percentage <= 0:
		return SpeedOff
	case percentage <= SpeedLow:
		return SpeedLow
	case percentage <= SpeedMedium:
		return SpeedMedium
	default:
		return SpeedHigh
	}
}

// Percentage is the bucketed speed.
func (s State) Percentage() int {
	return Quantize(s.Speed)
}

// PresetMode derives the preset from the state: Off when powered down,
// otherwise the bucket name. A powered fan at speed 0 has no preset.
func (s State) PresetMode() string {
	if !s.Power {
		return PresetOff
	}
	switch s.Percentage() {
	case SpeedLow:
		return PresetLow
	case SpeedMedium:
		return PresetMedium
	case SpeedHigh:
		return PresetHigh
	}
	return ""
}

// presetSpeed maps a preset to its target speed. ok is false for unknown
// names.
func presetSpeed(name string) (int, bool) {
	switch name {
	case PresetOff:
		return SpeedOff, true
	case PresetLow:
		return SpeedLow, true
	case PresetMedium:
		return SpeedMedium, true
	case PresetHigh:
		return SpeedHigh, true
	}
	return 0, false
}

// steps returns how many relative speed pulses move current to target.
func steps(current, target int) int {
	d := current - target
	if d < 0 {
		d = -d
	}
	return d / stepSize
}
