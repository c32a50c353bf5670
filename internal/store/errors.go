// Copyright 2025 Lantern Protocol
//
// Package store provides sentinel errors for repository operations.

package store

import "errors"

var (
	// ErrHeadNotFound is returned when the singleton head row is missing.
	ErrHeadNotFound = errors.New("audit head not found")

	// ErrEventNotFound is returned when a requested event row is missing.
	ErrEventNotFound = errors.New("audit event not found")

	// ErrCheckpointNotFound is returned when a requested checkpoint is missing.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)
