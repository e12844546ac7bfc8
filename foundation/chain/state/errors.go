package state

import "errors"

// Set of admission and chain errors returned by the write path. Handlers map
// these to client-facing responses.
var (
	ErrDecode         = errors.New("transaction decoding failed")
	ErrGasTooHigh     = errors.New("transaction gas exceeds the block gas limit")
	ErrBadSignature   = errors.New("transaction signature verification failed")
	ErrGasPriceTooLow = errors.New("transaction gas price below the accepted floor")
	ErrHalted         = errors.New("chain is halted after a failed commit")
)
