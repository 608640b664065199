package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateDecision is returned when a decision already exists for
	// the (DAO, proposal) pair. The ledger is append-once per proposal.
	ErrDuplicateDecision = errors.New("decision already recorded")

	// ErrAlreadyProcessed is returned by CheckAndMark when the proposal has
	// already entered the pipeline.
	ErrAlreadyProcessed = errors.New("proposal already processed")
)
