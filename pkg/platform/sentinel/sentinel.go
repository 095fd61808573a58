package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and platform packages
// return these (usually wrapped with the driver cause) and services translate
// them into coded domain errors.
//
//   - ErrNotFound: no row for the requested key
//   - ErrAlreadyExists: the resource being provisioned is already there
//   - ErrUnavailable: the backing system could not be reached or failed
//   - ErrTimeout: the call exceeded its deadline
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
	ErrTimeout       = errors.New("timeout")
)
