package models

import "errors"

// ErrNotFound is returned by collaborators when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrVirtualPhase rejects writes of synthesized phases.
var ErrVirtualPhase = errors.New("virtual phases cannot be saved")
