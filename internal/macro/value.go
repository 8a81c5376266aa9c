// Package macro expands recorded action templates for named macros. A
// template is a tree of mappings and sequences whose "IR_CODE" leaves are
// replaced with the macro's code before the populated action list is handed
// to a script runner.
package macro

import (
	"fmt"
	"math"
	"sort"
)

// Value is a node in an action template: Scalar, Mapping or Sequence.
type Value interface {
	isValue()
}

// Scalar is a leaf. V holds a string, bool, int64, float64 or nil.
type Scalar struct {
	V any
}

// Entry is one key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Value
}

// Mapping is an ordered set of keyed children.
type Mapping []Entry

// Sequence is an ordered list of children.
type Sequence []Value

func (Scalar) isValue()   {}
func (Mapping) isValue()  {}
func (Sequence) isValue() {}

// String returns s as a string and whether it is one.
func (s Scalar) String() (string, bool) {
	str, ok := s.V.(string)
	return str, ok
}

// Get returns the child stored under key.
func (m Mapping) Get(key string) (Value, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// FromAny converts decoded YAML or JSON data into a Value. Map keys are
// sorted so the result is deterministic.
func FromAny(in any) (Value, error) {
	switch v := in.(type) {
	case nil:
		return Scalar{}, nil
	case string, bool, float64, int64:
		return Scalar{V: v}, nil
	case int:
		return Scalar{V: int64(v)}, nil
	case int32:
		return Scalar{V: int64(v)}, nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", v)
		}
		return Scalar{V: int64(v)}, nil
	case float32:
		return Scalar{V: float64(v)}, nil
	case []any:
		seq := make(Sequence, 0, len(v))
		for i, item := range v {
			child, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			seq = append(seq, child)
		}
		return seq, nil
	case []map[string]any:
		seq := make(Sequence, 0, len(v))
		for i, item := range v {
			child, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			seq = append(seq, child)
		}
		return seq, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		m := make(Mapping, 0, len(v))
		for _, k := range keys {
			child, err := FromAny(v[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			m = append(m, Entry{Key: k, Value: child})
		}
		return m, nil
	case map[any]any:
		conv := make(map[string]any, len(v))
		for k, item := range v {
			conv[fmt.Sprint(k)] = item
		}
		return FromAny(conv)
	default:
		return nil, fmt.Errorf("unsupported template value of type %T", in)
	}
}

// Any converts a Value back into plain maps, slices and scalars suitable for
// JSON encoding or a service call payload.
func Any(v Value) any {
	switch n := v.(type) {
	case Scalar:
		return n.V
	case Mapping:
		out := make(map[string]any, len(n))
		for _, e := range n {
			out[e.Key] = Any(e.Value)
		}
		return out
	case Sequence:
		out := make([]any, 0, len(n))
		for _, item := range n {
			out = append(out, Any(item))
		}
		return out
	default:
		return nil
	}
}
