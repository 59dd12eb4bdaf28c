// Package common holds the error taxonomy shared by the publishing pipeline
// and the session layer. Every failure path in the engine resolves to one of
// these sentinels (possibly wrapped), so callers can classify with errors.Is.
package common

import "errors"

var (
	// repository specific errors
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed input rejected before persistence.
	// Never retried.
	ErrValidation = errors.New("validation error")

	// Data-integrity failures. Fatal for the item, surfaced for manual
	// review, never silently defaulted.
	ErrSerializationMismatch = errors.New("serialization mismatch")
	ErrMissingField          = errors.New("missing required field")

	// ErrNetworkTransient marks infrastructure failures that are retried
	// with backoff up to the configured limit.
	ErrNetworkTransient = errors.New("transient network error")

	// ErrRemoteRejected marks a remote store refusing the record. Fatal,
	// no retry.
	ErrRemoteRejected = errors.New("rejected by remote store")

	// ErrIdentityLinkFailure is returned after profile resolution exhausts
	// its retries. The session surfaces it as the Error state; it is never
	// treated as "new account".
	ErrIdentityLinkFailure = errors.New("identity link failure")
)
