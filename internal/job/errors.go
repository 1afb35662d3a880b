package job

import "errors"

// Failure classes of a run. Returned errors wrap exactly one of these.
var (
	ErrValidation   = errors.New("invalid job request")
	ErrRemoteSubmit = errors.New("submitting remote job")
	ErrRemoteFailed = errors.New("remote job failed")
	ErrTimedOut     = errors.New("remote job timed out")
	ErrRemoteFetch  = errors.New("fetching remote results")
	ErrExpression   = errors.New("computing state")
)
