// Copyright 2025 Lantern Protocol

package canon

import (
	"strings"
	"testing"
)

func TestCanonDeterministic(t *testing.T) {
	v := Map(map[string]Value{
		"b": Int(2),
		"a": Int(1),
		"nested": Map(map[string]Value{
			"y": Int(2),
			"x": Int(1),
		}),
	})
	b1, err := Canon(v)
	if err != nil {
		t.Fatalf("canon: %v", err)
	}
	b2, err := Canon(v)
	if err != nil {
		t.Fatalf("canon: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("canon is not deterministic across calls")
	}
}

func TestCanonOrderInsensitive(t *testing.T) {
	v1, err := FromJSON([]byte(`{"a":1,"b":2,"nested":{"x":1,"y":2}}`))
	if err != nil {
		t.Fatalf("parse v1: %v", err)
	}
	v2, err := FromJSON([]byte(`{"nested":{"y":2,"x":1},"b":2,"a":1}`))
	if err != nil {
		t.Fatalf("parse v2: %v", err)
	}
	c1, err := Canon(v1)
	if err != nil {
		t.Fatalf("canon v1: %v", err)
	}
	c2, err := Canon(v2)
	if err != nil {
		t.Fatalf("canon v2: %v", err)
	}
	if string(c1) != string(c2) {
		t.Fatalf("reordering keys changed canonical bytes:\n%s\n!=\n%s", c1, c2)
	}
}

func TestCanonRejectsDangerousKey(t *testing.T) {
	_, err := FromJSON([]byte(`{"__proto__":1}`))
	if err == nil {
		t.Fatalf("expected rejection of __proto__ key")
	}
	if !strings.Contains(err.Error(), "dangerous key") {
		t.Fatalf("expected 'dangerous key' reason, got: %v", err)
	}
}

func TestCanonRejectsBigInteger(t *testing.T) {
	_, err := FromJSON([]byte(`{"a":{"b":99999999999999999999999999}}`))
	if err == nil {
		t.Fatalf("expected rejection of big integer")
	}
	ce, ok := err.(*CanonError)
	if !ok {
		t.Fatalf("expected *CanonError, got %T", err)
	}
	if !strings.Contains(ce.Path, "$.a.b") {
		t.Fatalf("expected path to contain $.a.b, got %s", ce.Path)
	}
}

func TestCanonRejectsNonFinite(t *testing.T) {
	zero := 0.0
	nan := zero / zero
	_, err := Dec(nan)
	if err == nil {
		t.Fatalf("expected rejection of NaN")
	}
}

func TestAuditPayloadV1RoundTrip(t *testing.T) {
	payload, err := AuditPayloadV1(AuditPayloadV1Fields{
		SchemaVersion: "audit/1.1",
		Seq:           1,
		TS:            "2026-01-01T00:00:01Z",
		Action:        "A",
		Actor:         "svc",
		Payload:       `{"a":1}`,
		PrevHash:      "GENESIS",
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	h1, err := HashAuditPayload(payload)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashAuditPayload(payload)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 || len(h1) != 64 {
		t.Fatalf("expected stable 64-char hex hash, got %s / %s", h1, h2)
	}
}
