package macro

import (
	"irfan/internal/codes"
)

// Sentinel marks the template leaves that receive the macro's code.
const Sentinel = "IR_CODE"

// multiValueKeys are fields that take a list of commands rather than one.
var multiValueKeys = map[string]bool{
	"command": true,
}

// Expand returns a populated copy of template with every Sentinel leaf
// replaced by code. Under a multi-value key the code is wrapped in a
// one-element Sequence. template itself is never modified, so it can be
// expanded again for the next press.
func Expand(template Value, code codes.ActionCode) Value {
	return substitute(template, "", code)
}

// HasSentinel reports whether any leaf of v is the Sentinel.
func HasSentinel(v Value) bool {
	switch n := v.(type) {
	case Scalar:
		return isSentinel(n)
	case Mapping:
		for _, e := range n {
			if HasSentinel(e.Value) {
				return true
			}
		}
	case Sequence:
		for _, item := range n {
			if HasSentinel(item) {
				return true
			}
		}
	}
	return false
}

func substitute(v Value, key string, code codes.ActionCode) Value {
	switch n := v.(type) {
	case Scalar:
		if !isSentinel(n) {
			return n
		}
		if multiValueKeys[key] {
			return Sequence{Scalar{V: string(code)}}
		}
		return Scalar{V: string(code)}
	case Mapping:
		out := make(Mapping, len(n))
		for i, e := range n {
			out[i] = Entry{Key: e.Key, Value: substitute(e.Value, e.Key, code)}
		}
		return out
	case Sequence:
		// Items of a sequence are already list members; never wrap them again.
		out := make(Sequence, len(n))
		for i, item := range n {
			out[i] = substitute(item, "", code)
		}
		return out
	default:
		return v
	}
}

func isSentinel(s Scalar) bool {
	str, ok := s.String()
	return ok && str == Sentinel
}
