package store

import "errors"

var (
	// ErrSlotTaken is returned by InsertAppointment when the active-slot
	// uniqueness constraint rejects the row.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrReferenceTaken is returned by InsertAppointment when the
	// reference_number uniqueness constraint rejects the row.
	ErrReferenceTaken = errors.New("reference number already taken")

	// ErrNotFound is returned by lookups when no row matches.
	ErrNotFound = errors.New("not found")
)
