package engine

import "github.com/zeebo/errs"

var (
	// Error is the generic engine error class.
	Error = errs.Class("mddb")

	// NotFound is returned when a named entry is missing from the addressed array.
	NotFound = errs.Class("not found")

	// Conflict covers duplicate accessions and duplicate names without a resolved policy.
	Conflict = errs.Class("conflict")

	// LimitExceeded is returned when the accession space is exhausted.
	LimitExceeded = errs.Class("limit exceeded")

	// Inconsistency marks references whose backing document disagrees with its owner.
	Inconsistency = errs.Class("inconsistency")

	// Fatal errors leave the graph in a state only orphan cleanup can repair.
	Fatal = errs.Class("fatal")

	// Aborted is returned when the abort predicate fired at a safe point.
	Aborted = errs.Class("aborted")

	// DecodeError is returned when a trajectory yields no usable frames.
	DecodeError = errs.Class("decode")
)

// fatalCleanupHint is appended to every fatal error surfaced to the operator.
const fatalCleanupHint = "run the cleanup command to remove orphan data"
