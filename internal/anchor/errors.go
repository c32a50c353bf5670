// Copyright 2025 Lantern Protocol

package anchor

import "errors"

// ErrAllBackendsFailed is returned when anchors_mode is "required" and
// every configured backend failed to publish.
var ErrAllBackendsFailed = errors.New("anchor: all backends failed and anchors_mode is required")

// ErrRequiredModeNeedsTrustBoundary is returned when anchors_mode is
// "required" but log-only is the only active backend: log-only writes
// to this process's own log stream, not an external trust boundary, so
// it cannot satisfy "required" anchoring (spec §4.4).
var ErrRequiredModeNeedsTrustBoundary = errors.New("anchor: anchors_mode=required needs a trust-boundary backend (s3-worm, rfc3161, or ethereum); only log-only is active")
