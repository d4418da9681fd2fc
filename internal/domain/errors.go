package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Codec errors (§4.1 — parsing fails closed)
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownKind    = errors.New("unknown message kind")
	ErrEmptyFrame     = errors.New("empty frame")

	// Topology errors (§4.3)
	ErrNoSeedsReachable = errors.New("could not reach a majority of seeds")

	// Configuration errors (§6)
	ErrMissingConfig = errors.New("config file missing")
	ErrBadSeedLine   = errors.New("malformed seed directory line")
)
