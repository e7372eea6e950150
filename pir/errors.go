package pir

import "github.com/zeebo/errs"

var (
	// ErrInvalidArgument is returned for per-request input problems such as an index
	// out of range or a malformed ciphertext.
	ErrInvalidArgument = errs.Class("invalid argument")

	// ErrConfig marks setup problems that must stop a server from serving, e.g. a
	// dimension vector too small for the database.
	ErrConfig = errs.Class("configuration")

	// ErrCrypto wraps failures raised by the homomorphic backend.
	ErrCrypto = errs.Class("crypto")
)
