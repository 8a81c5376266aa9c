// Package codes holds the immutable table of infrared payloads for a device:
// one code per primitive remote button plus an ordered list of named macros.
package codes

import (
	"github.com/samber/lo"
)

// ActionCode is an opaque infrared payload as learned by the blaster.
type ActionCode string

// Key identifies a primitive remote button.
type Key string

// Primitive remote buttons.
const (
	PowerOn         Key = "power_on"
	PowerOff        Key = "power_off"
	SpeedUp         Key = "speed_up"
	SpeedDown       Key = "speed_down"
	OscillateToggle Key = "oscillate_toggle"
	HeatOn          Key = "heat_on"
	HeatOff         Key = "heat_off"
)

// AllKeys lists every primitive key in a stable order.
var AllKeys = []Key{PowerOn, PowerOff, SpeedUp, SpeedDown, OscillateToggle, HeatOn, HeatOff}

// RequiredKeys must carry a code for every device type.
var RequiredKeys = []Key{PowerOn, PowerOff, SpeedUp, SpeedDown, OscillateToggle}

// IsKnown reports whether k is one of the primitive keys.
func IsKnown(k Key) bool {
	return lo.Contains(AllKeys, k)
}

// Macro is a user-recorded named action bound to a single code.
type Macro struct {
	Name string
	Code ActionCode
}

// Table maps primitive keys and macro names to codes. It has no mutation
// methods once built.
type Table struct {
	primitives map[Key]ActionCode
	macros     []Macro
}

// NewTable copies the given codes and macros into a new Table. Unknown keys
// are dropped; empty codes are kept so Lookup can report them as unconfigured.
func NewTable(primitives map[Key]ActionCode, macros []Macro) *Table {
	t := &Table{
		primitives: make(map[Key]ActionCode, len(primitives)),
		macros:     make([]Macro, len(macros)),
	}
	for k, v := range primitives {
		if IsKnown(k) {
			t.primitives[k] = v
		}
	}
	copy(t.macros, macros)
	return t
}

// Lookup returns the code for a primitive key. ok is false when the key is
// absent or its code is empty; callers treat that as "skip".
func (t *Table) Lookup(k Key) (ActionCode, bool) {
	code, ok := t.primitives[k]
	if !ok || code == "" {
		return "", false
	}
	return code, true
}

// Configured returns the primitive keys that carry a non-empty code, in
// AllKeys order.
func (t *Table) Configured() []Key {
	return lo.Filter(AllKeys, func(k Key, _ int) bool {
		_, ok := t.Lookup(k)
		return ok
	})
}

// Missing returns the keys from want that have no usable code.
func (t *Table) Missing(want []Key) []Key {
	return lo.Reject(want, func(k Key, _ int) bool {
		_, ok := t.Lookup(k)
		return ok
	})
}

// Macros returns a copy of the macro entries in configuration order.
func (t *Table) Macros() []Macro {
	out := make([]Macro, len(t.macros))
	copy(out, t.macros)
	return out
}

// Macro finds a macro by display name.
func (t *Table) Macro(name string) (Macro, bool) {
	return lo.Find(t.macros, func(m Macro) bool {
		return m.Name == name
	})
}
