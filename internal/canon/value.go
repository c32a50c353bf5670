// Copyright 2025 Lantern Protocol
//
// Canonical value tree for deterministic hashing.
// Package canon is the single source of truth for canonicalization and
// the SHA-256 hashing primitives built on top of it; no other package
// in this module may define its own canonical-serialization or
// audit-hashing logic (enforced by the drift check in drift_test.go).

package canon

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDec
	KindStr
	KindSeq
	KindMap
)

// Value is the sum type accepted by Canon. It is the only shape the
// canonicalizer can serialize; anything else must be converted into a
// Value first (see FromJSON) or rejected.
type Value struct {
	kind Kind
	b    bool
	i    int64
	dec  string // finite decimal, stored as its canonical digit string
	s    string
	seq  []Value
	m    map[string]Value
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Str(s string) Value         { return Value{kind: KindStr, s: s} }
func Seq(v []Value) Value        { return Value{kind: KindSeq, seq: v} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Dec builds a finite-decimal Value from a float64, rejecting non-finite
// inputs up front so callers cannot smuggle NaN/Inf through this helper.
func Dec(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("non-finite number")
	}
	return Value{kind: KindDec, dec: strconv.FormatFloat(f, 'g', -1, 64)}, nil
}

func (v Value) Kind() Kind { return v.kind }

// dangerousKeys may never appear as a map key anywhere in a canonicalized
// tree; they are rejected even though Go has no prototype-pollution
// vulnerability of its own, because forensic packs produced here must be
// rejectable by any JSON-side consumer that does have one (see spec §9).
var dangerousKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// CanonError reports a canonicalization failure at a specific path, e.g.
// "$.a.b[2]".
type CanonError struct {
	Path   string
	Reason string
}

func (e *CanonError) Error() string {
	return fmt.Sprintf("canon: %s at %s", e.Reason, e.Path)
}

func newErr(path []string, reason string) error {
	return &CanonError{Path: joinPath(path), Reason: reason}
}

func joinPath(path []string) string {
	if len(path) == 0 {
		return "$"
	}
	var b strings.Builder
	b.WriteString("$")
	for _, p := range path {
		b.WriteString(p)
	}
	return b.String()
}

// Canon serializes v to its canonical byte form: object keys sorted by
// Unicode code point, arrays in original order, JSON-escaped strings,
// integers/finite decimals, null and booleans as their JSON literals.
func Canon(v Value) ([]byte, error) {
	var buf strings.Builder
	if err := writeCanon(&buf, v, nil); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func writeCanon(buf *strings.Builder, v Value, path []string) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindDec:
		buf.WriteString(v.dec)
	case KindStr:
		writeJSONString(buf, v.s)
	case KindSeq:
		buf.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanon(buf, e, append(path, fmt.Sprintf("[%d]", i))); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			if dangerousKeys[k] {
				return newErr(append(path, "."+k), "dangerous key")
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			if err := writeCanon(buf, v.m[k], append(path, "."+k)); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return newErr(path, "unserializable value")
	}
	return nil
}

// writeJSONString writes s as a standard JSON-escaped string literal.
func writeJSONString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
