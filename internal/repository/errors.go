// Package repository defines the MySQL-backed stores and the error values
// shared by every store implementation.  The sentinels let the service layer
// tell apart a missing row, a unique-key conflict and a lost conditional
// update without knowing which backend produced them.
package repository

import "errors"

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with a unique key.  The
// store rejects the second writer; callers never pre-check.
var ErrDuplicate = errors.New("duplicate key")

// ErrSoldOut is returned when a conditional seat increment finds the
// session already at capacity.
var ErrSoldOut = errors.New("session sold out")

// ErrStaleState is returned when a compare-and-swap update finds the row in
// a different state than the caller expected.
var ErrStaleState = errors.New("stale state")
