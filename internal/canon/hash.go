// Copyright 2025 Lantern Protocol

package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the lowercase 64-character hex SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// SHA256Raw returns the raw 32-byte SHA-256 digest of b, for callers
// that need the digest bytes themselves (e.g. an RFC 3161 messageImprint)
// rather than its hex encoding.
func SHA256Raw(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// AuditPayloadV1Fields are the caller-supplied fields used to build the
// canonical hashing object for one event. Payload is the caller's raw
// JSON blob; it is parsed into a Value tree by AuditPayloadV1 so that
// hashing is insensitive to the caller's own key ordering inside it.
type AuditPayloadV1Fields struct {
	SchemaVersion string
	Seq           int64
	TS            string
	Action        string
	Actor         string
	ReceiptID     *string
	ExportID      *string
	SavedViewID   *string
	Payload       string
	IP            *string
	UserAgent     *string
	PrevHash      string
}

func optStr(s *string) Value {
	if s == nil {
		return Null()
	}
	return Str(*s)
}

// AuditPayloadV1 constructs the canonical hashing object for an event:
// {_v, schemaVersion, seq, ts, action, actor, receiptId, exportId,
//  savedViewId, payload, ip, userAgent, prevHash}.
func AuditPayloadV1(f AuditPayloadV1Fields) (Value, error) {
	parsedPayload, err := FromJSON([]byte(f.Payload))
	if err != nil {
		return Value{}, err
	}
	return Map(map[string]Value{
		"_v":            Int(1),
		"schemaVersion": Str(f.SchemaVersion),
		"seq":           Int(f.Seq),
		"ts":            Str(f.TS),
		"action":        Str(f.Action),
		"actor":         Str(f.Actor),
		"receiptId":     optStr(f.ReceiptID),
		"exportId":      optStr(f.ExportID),
		"savedViewId":   optStr(f.SavedViewID),
		"payload":       parsedPayload,
		"ip":            optStr(f.IP),
		"userAgent":     optStr(f.UserAgent),
		"prevHash":      Str(f.PrevHash),
	}), nil
}

// HashAuditPayload returns sha256_hex(canon(payload)).
func HashAuditPayload(payload Value) (string, error) {
	b, err := Canon(payload)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}
