// Copyright 2025 Lantern Protocol

package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FromJSON parses raw JSON bytes into a Value tree. This is the only place
// in the module where caller-provided JSON is turned into something
// hashable, so every rejection rule in spec §4.1 is enforced here:
// undefined/uninitialized values can't occur (json.Unmarshal never
// produces them), but big integers overflowing int64, non-finite
// numbers, and non-plain-object maps are all rejected with a path.
func FromJSON(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return Value{}, &CanonError{Path: "$", Reason: "invalid JSON: " + err.Error()}
	}
	return fromAny(v, nil)
}

func fromAny(v interface{}, path []string) (Value, error) {
	switch vv := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(vv), nil
	case string:
		return Str(vv), nil
	case json.Number:
		return numberToValue(vv, path)
	case []interface{}:
		out := make([]Value, len(vv))
		for i, e := range vv {
			cv, err := fromAny(e, append(path, fmt.Sprintf("[%d]", i)))
			if err != nil {
				return Value{}, err
			}
			out[i] = cv
		}
		return Seq(out), nil
	case map[string]interface{}:
		out := make(map[string]Value, len(vv))
		for k, e := range vv {
			if dangerousKeys[k] {
				return Value{}, newErr(append(path, "."+k), "dangerous key")
			}
			cv, err := fromAny(e, append(path, "."+k))
			if err != nil {
				return Value{}, err
			}
			out[k] = cv
		}
		return Map(out), nil
	default:
		return Value{}, newErr(path, fmt.Sprintf("unserializable value kind %T", v))
	}
}

func numberToValue(n json.Number, path []string) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		// An integer literal that doesn't fit in int64 is a big-integer
		// value, not a decimal; reject rather than silently losing
		// precision by falling through to float64.
		return Value{}, newErr(path, "big-integer value")
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, newErr(path, "big-integer value")
	}
	return Dec(f)
}
