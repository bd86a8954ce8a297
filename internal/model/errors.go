package model

import "errors"

var (
	// ErrNotFound marks lookups that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks envelopes rejected before any write
	// (bad path prefix, malformed move metadata, missing move source).
	ErrValidation = errors.New("validation error")
	// ErrIntegrity marks envelopes rejected by hash or signature checks.
	ErrIntegrity = errors.New("integrity error")
)
