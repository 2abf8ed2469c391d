// Package errs holds the error kinds shared across the simulator.
//
// Callers classify failures with errors.Is; concrete errors wrap one of
// these sentinels with context.
package errs

import "errors"

var (
	// ErrConfiguration marks invalid schedule, risk or run parameters.
	// It is fatal and is reported before any bar is processed.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataIntegrity marks bad input data for a symbol: non-monotonic or
	// duplicate timestamps, missing columns, unparsable rows.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrInvalidPosition marks a malformed position (bad entry or stop side).
	ErrInvalidPosition = errors.New("invalid position")

	// ErrInvalidRisk marks a sizing request that cannot be satisfied.
	ErrInvalidRisk = errors.New("invalid risk")
)
